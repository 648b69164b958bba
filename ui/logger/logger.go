// Copyright 2024 Google Inc. All rights reserved.
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

// Package logger implements the Logger interface used throughout bundletool.
//
// Messages are written through log/slog. Verbose messages are only emitted
// after SetVerbose(true); warnings are colored so that they stand out on a
// terminal.
//
//	log := logger.New(os.Stderr)
//	log.Printf("Extracting package '%s'", pkg)
//	log.Warningf("Package '%s' is not supported by the attached device. Skipping.", pkg)
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Logger is the logging interface passed to every component.
type Logger interface {
	// Verbosef logs details that are only interesting when debugging.
	Verbosef(format string, v ...interface{})

	// Printf logs a notice for the operator.
	Printf(format string, v ...interface{})

	// Warningf logs a problem that does not stop the current operation.
	Warningf(format string, v ...interface{})

	// SetVerbose toggles output of Verbosef messages.
	SetVerbose(v bool)
}

type stdLogger struct {
	level      *slog.LevelVar
	logger     *slog.Logger
	warnLogger *slog.Logger

	mu       sync.Mutex
	warnings int
}

var _ Logger = &stdLogger{}

// New creates a Logger writing text records to out.
func New(out io.Writer) *stdLogger {
	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: dropTime,
	}
	return &stdLogger{
		level:      level,
		logger:     slog.New(slog.NewTextHandler(out, opts)),
		warnLogger: slog.New(slog.NewTextHandler(&colorWriter{out, color.New(color.FgYellow)}, opts)),
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// colorWriter colors every record written through it. Records are written
// with a single Write call by the slog handlers.
type colorWriter struct {
	w io.Writer
	c *color.Color
}

func (cw *colorWriter) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")
	if _, err := cw.c.Fprintln(cw.w, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *stdLogger) SetVerbose(v bool) {
	if v {
		s.level.Set(slog.LevelDebug)
	} else {
		s.level.Set(slog.LevelInfo)
	}
}

func (s *stdLogger) Verbosef(format string, v ...interface{}) {
	s.log(slog.LevelDebug, format, v...)
}

func (s *stdLogger) Printf(format string, v ...interface{}) {
	s.log(slog.LevelInfo, format, v...)
}

func (s *stdLogger) Warningf(format string, v ...interface{}) {
	s.mu.Lock()
	s.warnings++
	s.mu.Unlock()
	ctx := context.Background()
	if s.warnLogger.Enabled(ctx, slog.LevelWarn) {
		s.warnLogger.Log(ctx, slog.LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Warnings returns how many warnings have been logged.
func (s *stdLogger) Warnings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// Warnings returns how many warnings log has recorded, or 0 when log doesn't
// count them.
func Warnings(log Logger) int {
	if c, ok := log.(interface{ Warnings() int }); ok {
		return c.Warnings()
	}
	return 0
}

func (s *stdLogger) log(level slog.Level, format string, v ...interface{}) {
	ctx := context.Background()
	if !s.logger.Enabled(ctx, level) {
		return
	}
	s.logger.Log(ctx, level, fmt.Sprintf(format, v...))
}

// Discard is a Logger that drops every message.
var Discard Logger = New(io.Discard)
