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

// Package config holds the small set of constants shared between the
// legacy falconconfig loader and the slog-based logger: the severity
// names accepted by falcon_log_level.
package config

// Log severity names, ordered from the most to the least verbose. These are
// the literal strings accepted by the falcon_log_level config key.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// LogConfig mirrors the falcon_log_* keys of §6.
type LogConfig struct {
	Dir          string
	Format       string // "text" or "json"
	Severity     string
	MaxSizeMB    uint32
	ReservedNum  uint32
	ReservedTime uint32
}
