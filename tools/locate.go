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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Getenv looks up an environment variable; os.Getenv satisfies it.
type Getenv func(key string) string

// LocateAapt2 finds aapt2 in the newest build-tools directory of the SDK
// pointed to by ANDROID_HOME, then on PATH.
func LocateAapt2(env Getenv) (string, error) {
	var candidates []string
	if home := env("ANDROID_HOME"); home != "" {
		for _, dir := range buildToolsDirs(filepath.Join(home, "build-tools")) {
			candidates = append(candidates, filepath.Join(dir, executableName("aapt2")))
		}
	}
	return locate("aapt2", candidates, env)
}

// LocateAdb finds adb in the platform-tools directory of the SDK pointed to
// by ANDROID_HOME, then on PATH.
func LocateAdb(env Getenv) (string, error) {
	var candidates []string
	if home := env("ANDROID_HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, "platform-tools", executableName("adb")))
	}
	return locate("adb", candidates, env)
}

func locate(tool string, candidates []string, env Getenv) (string, error) {
	for _, dir := range filepath.SplitList(env("PATH")) {
		if dir == "" {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, executableName(tool)))
	}
	for _, c := range candidates {
		if isExecutable(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unable to locate %s: set ANDROID_HOME or add it to PATH", tool)
}

// buildToolsDirs returns the version directories under dir, newest first.
func buildToolsDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
	var ret []string
	for _, v := range versions {
		ret = append(ret, filepath.Join(dir, v))
	}
	return ret
}

// compareVersions compares dotted versions such as "34.0.0" numerically,
// falling back to string comparison for non-numeric components.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		xi, xerr := strconv.Atoi(x)
		yi, yerr := strconv.Atoi(y)
		switch {
		case xerr == nil && yerr == nil:
			if xi != yi {
				if xi < yi {
					return -1
				}
				return 1
			}
		case x != y:
			return strings.Compare(x, y)
		}
	}
	return 0
}

func executableName(tool string) string {
	if runtime.GOOS == "windows" {
		return tool + ".exe"
	}
	return tool
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode().Perm()&0111 != 0
}

// ErrNotExecutable is returned by CheckExecutable for files without any
// execute permission bit.
var ErrNotExecutable = errors.New("file is not executable")

// CheckExecutable verifies that path names an executable regular file.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() || !isExecutable(path) {
		return fmt.Errorf("%s: %w", path, ErrNotExecutable)
	}
	return nil
}
