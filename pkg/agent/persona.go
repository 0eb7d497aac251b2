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

package agent

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultBasePrompt = "You are {name}, a friendly and capable assistant. " +
	"Answer concisely and accurately. Use the available tools when they help, " +
	"and if a tool fails, explain what happened or try another approach."

// Persona is the assistant's fixed identity. It is loaded once at startup
// and shared read-only by every conversation; requests cannot override it.
type Persona struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	BasePrompt  string            `yaml:"base_prompt"`
	Greetings   map[string]string `yaml:"greetings"`
}

// DefaultPersona returns the built-in persona.
func DefaultPersona() Persona {
	return Persona{
		Name:        "Lumi Pilot",
		Description: "A tool-using AI assistant",
		BasePrompt:  defaultBasePrompt,
	}
}

// LoadPersona reads a persona from a YAML file. Missing fields fall back
// to the default persona.
func LoadPersona(path string) (Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona %s: %w", path, err)
	}

	p := DefaultPersona()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if strings.TrimSpace(p.BasePrompt) == "" {
		p.BasePrompt = defaultBasePrompt
	}
	return p, nil
}

// SystemPrompt renders the system instruction for a conversation started
// at now. "{name}" in the base prompt is replaced by the persona name and
// a greeting for the time of day is appended when one is configured.
func (p Persona) SystemPrompt(now time.Time) string {
	prompt := strings.ReplaceAll(p.BasePrompt, "{name}", p.Name)
	if greeting := p.Greetings[dayPeriod(now)]; greeting != "" {
		prompt += "\n\n" + greeting
	}
	return prompt
}

func dayPeriod(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return "morning"
	case h >= 11 && h < 14:
		return "noon"
	case h >= 14 && h < 18:
		return "afternoon"
	case h >= 18 && h < 22:
		return "evening"
	default:
		return "night"
	}
}
