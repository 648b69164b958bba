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
	"os"
)

// TempDir is a temporary directory that lives as long as one top-level
// operation. Callers defer Close right after creating it.
type TempDir struct {
	path string
}

// NewTempDir creates a new directory in parent, or in the default temporary
// directory if parent is empty.
func NewTempDir(parent, pattern string) (*TempDir, error) {
	path, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, err
	}
	return &TempDir{path: path}, nil
}

func (d *TempDir) Path() string {
	return d.path
}

// Subdir creates a new, uniquely named directory inside d.
func (d *TempDir) Subdir(pattern string) (string, error) {
	return os.MkdirTemp(d.path, pattern)
}

// Close removes the directory and everything in it.
func (d *TempDir) Close() error {
	return os.RemoveAll(d.path)
}
