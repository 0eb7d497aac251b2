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

package secrets

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasker_Mask(t *testing.T) {
	m := NewMasker()
	m.AddSecret("sk-abcdef123456")
	m.AddSecret("abc") // too short, ignored

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "key is ***", m.Mask("key is sk-abcdef123456"))
	assert.Equal(t, "abc stays", m.Mask("abc stays"))
}

func TestMasker_LongestFirst(t *testing.T) {
	m := NewMasker()
	m.AddSecret("token")
	m.AddSecret("token-with-suffix")

	assert.Equal(t, "***", m.Mask("token-with-suffix"))
}

func TestMasker_AddSecretsFromEnv(t *testing.T) {
	m := NewMasker()
	m.AddSecretsFromEnv(map[string]string{
		"GITHUB_TOKEN": "ghp_secretvalue",
		"DB_PASSWORD":  "hunter22",
		"HOME":         "/home/user",
	})

	assert.Equal(t, 2, m.Len())
	assert.True(t, m.IsSecretKey("openai_api_key"))
	assert.False(t, m.IsSecretKey("HOME"))
	assert.Equal(t, "/home/user", m.Mask("/home/user"))
}

func TestMasker_MaskMap(t *testing.T) {
	m := NewMasker()
	m.AddSecret("s3cr3t-value")

	in := map[string]any{
		"query":  "use s3cr3t-value please",
		"nested": map[string]any{"list": []any{"s3cr3t-value", 42.0, true, nil}},
		"count":  3.0,
	}
	out := m.MaskMap(in)

	assert.Equal(t, "use *** please", out["query"])
	assert.Equal(t, []any{"***", 42.0, true, nil}, out["nested"].(map[string]any)["list"])
	assert.Equal(t, 3.0, out["count"])
	assert.Equal(t, "use s3cr3t-value please", in["query"], "input must not be modified")
	assert.Nil(t, m.MaskMap(nil))
}

func TestMasker_MaskJSON(t *testing.T) {
	m := NewMasker()
	m.AddSecret("s3cr3t-value")

	assert.JSONEq(t, `{"k":"***"}`, m.MaskJSON(`{"k":"s3cr3t-value"}`))
	assert.Equal(t, "not json ***", m.MaskJSON("not json s3cr3t-value"))
}

func TestMasker_NilSafe(t *testing.T) {
	var m *Masker
	assert.Equal(t, "text", m.Mask("text"))
}

func TestMasker_Concurrent(t *testing.T) {
	m := NewMasker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.AddSecret("concurrent-secret")
		}()
		go func() {
			defer wg.Done()
			_ = m.Mask("concurrent-secret")
		}()
	}
	wg.Wait()
	assert.Equal(t, "***", m.Mask("concurrent-secret"))
}
