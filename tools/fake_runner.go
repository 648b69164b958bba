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

package tools

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// FakeRunner is a Runner for tests. Commands are matched against registered
// argv prefixes, most recently registered first; unmatched commands fail.
type FakeRunner struct {
	mu       sync.Mutex
	handlers []fakeHandler
	commands []Command
}

type fakeHandler struct {
	prefix []string
	fn     func(cmd Command, stdin []byte) ([]byte, error)
}

var _ Runner = &FakeRunner{}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// Handle registers fn for commands whose argv starts with prefix.
func (f *FakeRunner) Handle(fn func(cmd Command, stdin []byte) ([]byte, error), prefix ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fakeHandler{prefix: prefix, fn: fn})
}

// Respond makes commands starting with prefix succeed with output.
func (f *FakeRunner) Respond(output string, prefix ...string) {
	f.Handle(func(Command, []byte) ([]byte, error) {
		return []byte(output), nil
	}, prefix...)
}

// Fail makes commands starting with prefix exit with exitCode and output.
func (f *FakeRunner) Fail(exitCode int, output string, prefix ...string) {
	f.Handle(func(cmd Command, _ []byte) ([]byte, error) {
		return nil, &ToolExecutionError{
			Args:     cmd.Argv(),
			ExitCode: exitCode,
			Output:   []byte(output),
			Err:      fmt.Errorf("exit status %d", exitCode),
		}
	}, prefix...)
}

// Commands returns every command run so far.
func (f *FakeRunner) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.commands...)
}

// CommandLines returns every command run so far as a space separated string.
func (f *FakeRunner) CommandLines() []string {
	var ret []string
	for _, c := range f.Commands() {
		ret = append(ret, c.String())
	}
	return ret
}

func (f *FakeRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stdin []byte
	if cmd.Stdin != nil {
		var err error
		if stdin, err = io.ReadAll(cmd.Stdin); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	var handler *fakeHandler
	argv := cmd.Argv()
	for i := len(f.handlers) - 1; i >= 0; i-- {
		if hasPrefix(argv, f.handlers[i].prefix) {
			handler = &f.handlers[i]
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return nil, &ToolExecutionError{
			Args:     argv,
			ExitCode: 127,
			Err:      fmt.Errorf("unexpected command %q", strings.Join(argv, " ")),
		}
	}
	return handler.fn(cmd, stdin)
}

func hasPrefix(argv, prefix []string) bool {
	if len(prefix) > len(argv) {
		return false
	}
	for i := range prefix {
		if argv[i] != prefix[i] {
			return false
		}
	}
	return true
}
