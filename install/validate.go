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

package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"android/bundletool/tools"
)

// InputValidationError reports a missing or malformed input. It is always
// returned before any device is touched.
type InputValidationError struct {
	Path string
	Msg  string
	Err  error
}

func (e *InputValidationError) Error() string {
	msg := e.Msg
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *InputValidationError) Unwrap() error {
	return e.Err
}

func invalidInput(format string, args ...interface{}) error {
	return &InputValidationError{Msg: fmt.Sprintf(format, args...)}
}

// CheckFileExistsAndReadable verifies that path is a regular file that can be
// opened for reading.
func CheckFileExistsAndReadable(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return &InputValidationError{Path: path, Msg: "file was not found"}
	} else if err != nil {
		return &InputValidationError{Path: path, Msg: "unable to read file", Err: err}
	}
	if info.IsDir() {
		return &InputValidationError{Path: path, Msg: "expected a file, found a directory"}
	}
	f, err := os.Open(path)
	if err != nil {
		return &InputValidationError{Path: path, Msg: "file is not readable", Err: err}
	}
	return f.Close()
}

// CheckFileHasExtension verifies the extension of path, ignoring case.
func CheckFileHasExtension(description, path, extension string) error {
	if !strings.EqualFold(filepath.Ext(path), extension) {
		return &InputValidationError{Path: path,
			Msg: fmt.Sprintf("%s expected to have '%s' extension", description, extension)}
	}
	return nil
}

// CheckFileExistsAndExecutable verifies that path is an executable file.
func CheckFileExistsAndExecutable(path string) error {
	if err := tools.CheckExecutable(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &InputValidationError{Path: path, Msg: "file was not found"}
		}
		return &InputValidationError{Path: path, Msg: "file is not executable", Err: err}
	}
	return nil
}
