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

// Package tools runs the external binaries bundletool depends on (aapt2, adb)
// as subprocesses.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"android/bundletool/ui/logger"
)

// DefaultTimeout bounds every subprocess started by an ExecRunner.
const DefaultTimeout = 5 * time.Minute

// errTimeout is the cause of a context canceled by the runner's own timer.
var errTimeout = errors.New("tool timeout elapsed")

// Command describes one invocation of an external tool.
type Command struct {
	Path  string
	Args  []string
	Stdin io.Reader
}

// Argv returns the full command line, starting with the tool path.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner runs a command and returns its combined stdout and stderr.
// Implementations keep no state between calls and never retry.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ToolExecutionError is returned when a tool could not be started, exited
// with a non-zero status or ran past its timeout.
type ToolExecutionError struct {
	Args []string
	// ExitCode is -1 when the process did not exit on its own.
	ExitCode int
	TimedOut bool
	Timeout  time.Duration
	// Output is the combined stdout and stderr of the tool.
	Output []byte
	Err    error
}

func (e *ToolExecutionError) Error() string {
	cmd := strings.Join(e.Args, " ")
	switch {
	case e.TimedOut:
		return fmt.Sprintf("command timed out after %s: %s", e.Timeout, cmd)
	case e.ExitCode >= 0:
		return fmt.Sprintf("command '%s' didn't terminate successfully (exit code: %d)", cmd, e.ExitCode)
	}
	return fmt.Sprintf("error when executing '%s': %v", cmd, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands as subprocesses. On failure the captured output is
// copied to Stderr before the error is returned; on success it is only
// returned to the caller.
type ExecRunner struct {
	Timeout time.Duration
	Stderr  io.Writer
	log     logger.Logger
}

var _ Runner = &ExecRunner{}

func NewExecRunner(log logger.Logger, stderr io.Writer) *ExecRunner {
	return &ExecRunner{
		Timeout: DefaultTimeout,
		Stderr:  stderr,
		log:     log,
	}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, errTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	var out bytes.Buffer
	cmd.Stdin = c.Stdin
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Don't wait forever on grandchildren that keep the output pipe open.
	cmd.WaitDelay = time.Second

	r.log.Verbosef("executing %q", c.String())
	started := time.Now()
	err := cmd.Run()
	if err == nil {
		r.log.Verbosef("%q finished in %s", c.Path, time.Since(started).Round(time.Millisecond))
		return out.Bytes(), nil
	}

	toolErr := &ToolExecutionError{
		Args:     c.Argv(),
		ExitCode: -1,
		Output:   out.Bytes(),
		Err:      err,
	}
	var exitErr *exec.ExitError
	// A deadline or cancellation inherited from the caller is not a timeout of the tool.
	if errors.Is(context.Cause(ctx), errTimeout) {
		toolErr.TimedOut = true
		toolErr.Timeout = timeout
	} else if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	r.printOutput(toolErr.Output)
	return nil, toolErr
}

func (r *ExecRunner) printOutput(output []byte) {
	if r.Stderr == nil || len(output) == 0 {
		return
	}
	r.Stderr.Write(output)
	if output[len(output)-1] != '\n' {
		io.WriteString(r.Stderr, "\n")
	}
}
