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
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/tombee/lumipilot/pkg/errors"
)

const allowedChars = "0123456789+-*/.() "

// Calculator evaluates arithmetic expressions. Only digits, the four
// operators, decimal points, parentheses and spaces are accepted, so no
// identifiers or function calls ever reach the expression engine.
// Expressions are compiled per call; the model rarely repeats one.
type Calculator struct{}

// NewCalculator creates a calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Evaluate returns the formatted numeric result of expression.
func (c *Calculator) Evaluate(expression string) (string, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return "", &errors.ValidationError{Field: "expression", Message: "expression is empty"}
	}
	for _, r := range expression {
		if !strings.ContainsRune(allowedChars, r) {
			return "", &errors.ValidationError{
				Field:      "expression",
				Message:    fmt.Sprintf("expression contains unsupported character %q", r),
				Suggestion: "use only digits, + - * / . ( ) and spaces",
			}
		}
	}
	// ".." is the range operator in expr.
	if strings.Contains(expression, "..") {
		return "", &errors.ValidationError{Field: "expression", Message: "malformed number"}
	}

	program, err := expr.Compile(expression)
	if err != nil {
		return "", &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("failed to parse expression: %s", err.Error()),
		}
	}

	out, err := expr.Run(program, nil)
	if err != nil {
		return "", &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("evaluation failed: %s", err.Error()),
		}
	}

	return formatNumber(out)
}

func formatNumber(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return "", &errors.ValidationError{Field: "expression", Message: "result is not a finite number (division by zero?)"}
		}
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	default:
		return "", &errors.ValidationError{Field: "expression", Message: fmt.Sprintf("result is not a number: %T", v)}
	}
}
