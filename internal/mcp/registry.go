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

package mcp

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// NamespaceSeparator joins a connection ID and a tool name.
const NamespaceSeparator = "."

// maxWireName is the longest function name chat-completion APIs accept.
const maxWireName = 64

var wireUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// QualifiedName namespaces a tool under its connection. Every tool is
// namespaced, so identically named tools on different servers never collide.
func QualifiedName(connectionID, toolName string) string {
	return connectionID + NamespaceSeparator + toolName
}

// entry is one registry row.
type entry struct {
	def      ToolDefinition
	wireName string
	schema   *jsonschema.Schema
}

// Snapshot is an immutable name-to-tool index. Rebuilds produce a new
// Snapshot; snapshots already handed out are never mutated, so readers
// need no locking.
type Snapshot struct {
	version uint64
	entries []entry
	byName  map[string]int
	byWire  map[string]int
}

// BuildSnapshot indexes defs. Definitions sharing a qualified name are
// impossible when connection IDs are unique; if it happens anyway both are
// kept under suffixed names rather than one being dropped.
func BuildSnapshot(version uint64, defs []ToolDefinition) *Snapshot {
	sorted := make([]ToolDefinition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].QualifiedName != sorted[j].QualifiedName {
			return sorted[i].QualifiedName < sorted[j].QualifiedName
		}
		return sorted[i].ConnectionID < sorted[j].ConnectionID
	})

	s := &Snapshot{
		version: version,
		entries: make([]entry, 0, len(sorted)),
		byName:  make(map[string]int, len(sorted)),
		byWire:  make(map[string]int, len(sorted)),
	}

	for _, def := range sorted {
		if def.QualifiedName == "" {
			def.QualifiedName = QualifiedName(def.ConnectionID, def.Name)
		}
		def.QualifiedName = uniqueName(def.QualifiedName, s.byName)
		wire := uniqueName(wireName(def.QualifiedName), s.byWire)

		idx := len(s.entries)
		s.entries = append(s.entries, entry{
			def:      def,
			wireName: wire,
			schema:   compileSchema(def),
		})
		s.byName[def.QualifiedName] = idx
		s.byWire[wire] = idx
	}
	return s
}

// uniqueName appends _2, _3, ... until name is unused in taken.
func uniqueName(name string, taken map[string]int) string {
	if _, ok := taken[name]; !ok {
		return name
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf("_%d", n)
		candidate := name + suffix
		if len(candidate) > maxWireName && len(name) > maxWireName-len(suffix) {
			candidate = name[:maxWireName-len(suffix)] + suffix
		}
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// wireName converts a qualified name to a function name acceptable to
// chat-completion APIs: [a-zA-Z0-9_-], at most 64 characters.
func wireName(qualified string) string {
	name := strings.Replace(qualified, NamespaceSeparator, "__", 1)
	name = wireUnsafe.ReplaceAllString(name, "_")
	if len(name) > maxWireName {
		name = name[:maxWireName]
	}
	return name
}

func compileSchema(def ToolDefinition) *jsonschema.Schema {
	if len(def.InputSchema) == 0 {
		return nil
	}
	schema, err := jsonschema.CompileString("tool://"+wireName(def.QualifiedName), string(def.InputSchema))
	if err != nil {
		// Unusable schemas disable argument validation for that tool only.
		return nil
	}
	return schema
}

// Version increases with every rebuild.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Len returns the number of tools.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Lookup resolves a qualified or wire name.
func (s *Snapshot) Lookup(name string) (ToolDefinition, bool) {
	if i, ok := s.byName[name]; ok {
		return s.entries[i].def, true
	}
	if i, ok := s.byWire[name]; ok {
		return s.entries[i].def, true
	}
	return ToolDefinition{}, false
}

// WireName returns the function name the model sees for a qualified name.
func (s *Snapshot) WireName(qualified string) string {
	if i, ok := s.byName[qualified]; ok {
		return s.entries[i].wireName
	}
	return wireName(qualified)
}

// Tools returns every definition, ordered by qualified name.
func (s *Snapshot) Tools() []ToolDefinition {
	out := make([]ToolDefinition, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.def
	}
	return out
}

// Validate checks args against the tool's input schema. Tools without a
// usable schema accept anything.
func (s *Snapshot) Validate(name string, args map[string]any) error {
	i, ok := s.byName[name]
	if !ok {
		if i, ok = s.byWire[name]; !ok {
			return &ResolutionError{Name: name, Reason: "unknown tool"}
		}
	}
	return validateArguments(s.entries[i].schema, args)
}

// EmptySnapshot has no tools.
func EmptySnapshot() *Snapshot {
	return BuildSnapshot(0, nil)
}
