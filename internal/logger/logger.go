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

// Package logger is FalconFS's structured logger: a thin layer over
// log/slog with two severities the standard library doesn't have (TRACE
// and a WARNING alias of Warn), a text and a JSON handler, and file
// rotation via lumberjack fronted by an async writer so a slow disk never
// stalls a request-handling goroutine.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/falconfs/falcon/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Custom severities that slog doesn't define out of the box. Debug/Info/
// Warn/Error line up with slog's own levels so handlers can compare
// directly.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(16)
)

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

type loggerFactory struct {
	format string // "text" or "json"
	prefix string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				lvl := a.Value.Any().(slog.Level)
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(lvl))
			case slog.MessageKey:
				a.Key = "message"
				a.Value = slog.StringValue(prefix + a.Value.String())
			case slog.TimeKey:
				if f.format == "json" {
					t := a.Value.Time()
					a.Key = "timestamp"
					a.Value = slog.GroupValue(
						slog.Int64("seconds", t.Unix()),
						slog.Int64("nanos", int64(t.Nanosecond())),
					)
				} else {
					a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
				}
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var (
	programLevel         = new(slog.LevelVar)
	defaultLoggerFactory = &loggerFactory{format: "json"}
	defaultLogger        = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
	closer               io.Closer
)

func setLoggingLevel(level string, lv *slog.LevelVar) {
	switch strings.ToUpper(level) {
	case config.TRACE:
		lv.Set(LevelTrace)
	case config.DEBUG:
		lv.Set(LevelDebug)
	case config.INFO:
		lv.Set(LevelInfo)
	case config.WARNING:
		lv.Set(LevelWarn)
	case config.ERROR:
		lv.Set(LevelError)
	case config.OFF:
		lv.Set(LevelOff)
	default:
		lv.Set(LevelInfo)
	}
}

// SetLoggingLevel sets the process-wide minimum severity.
func SetLoggingLevel(level string) {
	setLoggingLevel(level, programLevel)
}

// Init configures the default logger per §6's falcon_log_* keys. Passing a
// zero-value cfg.Dir logs to stderr. Init is not safe to call
// concurrently with the Tracef/.../Errorf family; call it once at daemon
// startup.
func Init(cfg config.LogConfig) error {
	SetLoggingLevel(cfg.Severity)
	if cfg.Format != "" {
		defaultLoggerFactory.format = cfg.Format
	}

	var w io.Writer = os.Stderr
	if cfg.Dir != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Dir + "/falcon.log",
			MaxSize:    int(cfg.MaxSizeMB),
			MaxBackups: int(cfg.ReservedNum),
			MaxAge:     int(cfg.ReservedTime),
			Compress:   true,
		}
		async := NewAsyncLogger(lj, 4096)
		closer = async
		w = async
	}

	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

// Close flushes and closes the async writer, if one was configured by Init.
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

func log(level slog.Level, format string, args ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	defaultLogger.Log(context.Background(), level, msg)
}

func Tracef(format string, args ...any) { log(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { log(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { log(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { log(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { log(LevelError, format, args...) }

// Fatalf logs at ERROR, closes the logger and then exits the process
// with status 1. Nothing in this module calls it.
func Fatalf(format string, args ...any) {
	log(LevelError, format, args...)
	_ = Close()
	os.Exit(1)
}
