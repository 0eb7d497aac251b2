// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/lumipilot/pkg/errors"
)

func TestCalculator_Evaluate(t *testing.T) {
	calc := NewCalculator()

	tests := []struct {
		name    string
		expr    string
		want    string
		wantErr string
	}{
		{name: "addition", expr: "2+2", want: "4"},
		{name: "precedence", expr: "2 + 3 * 4", want: "14"},
		{name: "parentheses", expr: "(2 + 3) * 4", want: "20"},
		{name: "division yields float", expr: "7 / 2", want: "3.5"},
		{name: "decimals", expr: "0.5 + 0.25", want: "0.75"},
		{name: "negative", expr: "-3 + 1", want: "-2"},
		{name: "empty", expr: "   ", wantErr: "empty"},
		{name: "identifier", expr: "len(\"abc\")", wantErr: "unsupported character"},
		{name: "range operator", expr: "1..5", wantErr: "malformed"},
		{name: "syntax error", expr: "2 +* (", wantErr: "failed to parse"},
		{name: "division by zero", expr: "1 / 0", wantErr: "finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Evaluate(tt.expr)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var ve *errors.ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculator_RepeatedAndConcurrent(t *testing.T) {
	calc := NewCalculator()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := calc.Evaluate(fmt.Sprintf("%d + 1", i))
			assert.NoError(t, err)
			assert.Equal(t, strconv.Itoa(i+1), got)
		}()
	}
	wg.Wait()

	got, err := calc.Evaluate("1+1")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}
