// Copyright 2025 Google LLC
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

// Package falconconfig loads the legacy CONFIG_FILE JSON document (§6) into
// a property registry with dynamically-typed values, the way the original
// property registry did: string keys map to a small sum type, and a
// mismatched accessor logs and falls back to the caller's default rather
// than panicking.
package falconconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/falconfs/falcon/internal/logger"
)

// Kind is the sum type of configuration value shapes (§9 "Dynamic typing on
// config values").
type Kind int

const (
	KindU32 Kind = iota
	KindU64
	KindBool
	KindString
	KindStringList
	KindF64
)

// Value is a dynamically-typed configuration entry.
type Value struct {
	Kind   Kind
	U32    uint32
	U64    uint64
	Bool   bool
	Str    string
	Strs   []string
	F64    float64
}

// Registry is the process-wide set of recognized configuration keys, as
// read from the file named by the CONFIG_FILE environment variable.
type Registry struct {
	values map[string]Value
}

// rawDoc is the on-disk shape: every key recognized by §6 is optional, and
// unrecognized keys are ignored rather than rejected.
type rawDoc map[string]json.RawMessage

// Load reads and parses the JSON document at path into a Registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("falconconfig: read %s: %w", path, err)
	}

	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("falconconfig: parse %s: %w", path, err)
	}

	r := &Registry{values: make(map[string]Value, len(doc))}
	for key, raw := range doc {
		v, err := decode(raw)
		if err != nil {
			logger.Warnf("falconconfig: skipping %s: %v", key, err)
			continue
		}
		r.values[key] = v
	}
	return r, nil
}

// LoadFromEnv loads the document named by the CONFIG_FILE environment
// variable, or returns an empty registry if it is unset.
func LoadFromEnv() (*Registry, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return &Registry{values: map[string]Value{}}, nil
	}
	return Load(path)
}

func decode(raw json.RawMessage) (Value, error) {
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return Value{Kind: KindBool, Bool: asBool}, nil
	}

	var asStrs []string
	if err := json.Unmarshal(raw, &asStrs); err == nil {
		return Value{Kind: KindStringList, Strs: asStrs}, nil
	}

	var asStr string
	if err := json.Unmarshal(raw, &asStr); err == nil {
		return Value{Kind: KindString, Str: asStr}, nil
	}

	var asF64 float64
	if err := json.Unmarshal(raw, &asF64); err == nil {
		if asF64 == float64(uint32(asF64)) {
			return Value{Kind: KindU32, U32: uint32(asF64), U64: uint64(asF64), F64: asF64}, nil
		}
		return Value{Kind: KindF64, F64: asF64}, nil
	}

	return Value{}, fmt.Errorf("unrecognized value shape: %s", string(raw))
}

func (r *Registry) lookup(key string, want Kind) (Value, bool) {
	v, ok := r.values[key]
	if !ok {
		return Value{}, false
	}
	if v.Kind != want && !(want == KindU64 && v.Kind == KindU32) {
		logger.Warnf("falconconfig: key %s has kind %d, wanted %d", key, v.Kind, want)
		return Value{}, false
	}
	return v, true
}

func (r *Registry) GetU32(key string, def uint32) uint32 {
	if v, ok := r.lookup(key, KindU32); ok {
		return v.U32
	}
	return def
}

func (r *Registry) GetU64(key string, def uint64) uint64 {
	if v, ok := r.lookup(key, KindU64); ok {
		return v.U64
	}
	return def
}

func (r *Registry) GetBool(key string, def bool) bool {
	if v, ok := r.lookup(key, KindBool); ok {
		return v.Bool
	}
	return def
}

func (r *Registry) GetString(key string, def string) string {
	if v, ok := r.lookup(key, KindString); ok {
		return v.Str
	}
	return def
}

func (r *Registry) GetStringList(key string, def []string) []string {
	if v, ok := r.lookup(key, KindStringList); ok {
		return v.Strs
	}
	return def
}

func (r *Registry) GetF64(key string, def float64) float64 {
	if v, ok := r.lookup(key, KindF64); ok {
		return v.F64
	}
	if v, ok := r.lookup(key, KindU32); ok {
		return float64(v.U32)
	}
	return def
}
