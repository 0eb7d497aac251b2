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

// Package secrets masks known secret values before they reach logs.
package secrets

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Placeholder replaces every masked value.
const Placeholder = "***"

// minSecretLen avoids masking short values such as "1" that would shred
// unrelated text.
const minSecretLen = 4

var defaultSuffixes = []string{
	"_TOKEN",
	"_SECRET",
	"_KEY",
	"_PASSWORD",
	"_PASS",
	"_PWD",
}

// Masker replaces registered secret values. It is safe for concurrent use.
type Masker struct {
	mu       sync.RWMutex
	suffixes []string
	secrets  []string // longest first
}

// NewMasker creates a masker that treats env keys with the usual secret
// suffixes (_TOKEN, _KEY, ...) as secret.
func NewMasker() *Masker {
	return &Masker{suffixes: defaultSuffixes}
}

// AddSecret registers a value to mask.
func (m *Masker) AddSecret(value string) {
	if len(value) < minSecretLen {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.secrets {
		if s == value {
			return
		}
	}
	m.secrets = append(m.secrets, value)
	// Longer secrets first so a secret containing another is masked whole.
	sort.SliceStable(m.secrets, func(i, j int) bool { return len(m.secrets[i]) > len(m.secrets[j]) })
}

// AddSecretsFromEnv registers the values of secret-looking keys.
func (m *Masker) AddSecretsFromEnv(env map[string]string) {
	for key, value := range env {
		if m.IsSecretKey(key) {
			m.AddSecret(value)
		}
	}
}

// IsSecretKey reports whether key names a secret.
func (m *Masker) IsSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// Len returns the number of registered secrets.
func (m *Masker) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}

// Mask replaces every registered secret in s.
func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, secret := range m.secrets {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, Placeholder)
		}
	}
	return s
}

// MaskMap returns a copy of data with secrets masked at any depth.
func (m *Masker) MaskMap(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = m.maskValue(v)
	}
	return out
}

func (m *Masker) maskValue(v any) any {
	switch val := v.(type) {
	case string:
		return m.Mask(val)
	case map[string]any:
		return m.MaskMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.maskValue(item)
		}
		return out
	case nil, bool, float64, int, int64, json.Number:
		return val
	default:
		return m.Mask(fmt.Sprintf("%v", val))
	}
}

// MaskJSON masks secrets inside a JSON document, falling back to plain
// string masking when it does not parse.
func (m *Masker) MaskJSON(doc string) string {
	var data any
	if err := json.Unmarshal([]byte(doc), &data); err != nil {
		return m.Mask(doc)
	}
	out, err := json.Marshal(m.maskValue(data))
	if err != nil {
		return m.Mask(doc)
	}
	return string(out)
}
