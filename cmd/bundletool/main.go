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

// bundletool installs and extracts APK sets and merges module splits.
//
//	bundletool install-multi-apks --apks=a.apks,b.apks [--enable-rollback] [--update-only]
//	bundletool extract-apks -o out.apk --zip extra.zip --sdk-version 30 --abis ARM64_V8A app.apks
//	bundletool merge-splits --descriptor splits.yaml -o out/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"android/bundletool/device"
	"android/bundletool/install"
	"android/bundletool/response"
	"android/bundletool/tools"
	"android/bundletool/ui/logger"
)

// environment is everything the commands take from the outside world.
type environment struct {
	getenv    tools.Getenv
	newRunner func(log logger.Logger, stderr io.Writer) tools.Runner
	newBridge func(runner tools.Runner, adbPath string, log logger.Logger) device.Bridge
}

var osEnvironment = environment{
	getenv: os.Getenv,
	newRunner: func(log logger.Logger, stderr io.Writer) tools.Runner {
		return tools.NewExecRunner(log, stderr)
	},
	newBridge: func(runner tools.Runner, adbPath string, log logger.Logger) device.Bridge {
		return device.NewAdbBridge(runner, adbPath, log)
	},
}

func main() {
	os.Exit(runMain(os.Args[1:], os.Stdout, os.Stderr))
}

func runMain(args []string, stdout, stderr io.Writer) int {
	return run(context.Background(), osEnvironment, args, stdout, stderr)
}

// run executes the command line and returns the process exit code: 0 on
// success, 2 for invalid input and 1 for any other failure. Arguments of the
// form @file are replaced by the contents of file.
func run(ctx context.Context, env environment, args []string, stdout, stderr io.Writer) int {
	args, err := response.Expand(args)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	cmd := newRootCmd(env)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return exitCode(err, stderr)
	}
	return 0
}

// exitCode reports err on stderr and maps it to an exit code.
func exitCode(err error, stderr io.Writer) int {
	color.New(color.FgRed).Fprintf(stderr, "error: %v\n", err)
	var inputErr *install.InputValidationError
	var usageErr usageError
	switch {
	case errors.As(err, &usageErr):
		fmt.Fprintln(stderr, usageErr.usage)
		return 2
	case errors.As(err, &inputErr):
		return 2
	}
	return 1
}

// usageError is returned for bad command lines; the usage of the command is
// printed after the error.
type usageError struct {
	err   error
	usage string
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }
