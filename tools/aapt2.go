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
	"regexp"
	"strings"
)

// Aapt2Command exposes the aapt2 commands used by bundletool.
type Aapt2Command interface {
	// ConvertApkProtoToBinary converts an APK in proto format, as produced
	// for bundles, into the binary format installed on devices.
	ConvertApkProtoToBinary(ctx context.Context, protoApk, binaryApk string) error

	// DumpBadging returns the lines printed by `aapt2 dump badging`.
	DumpBadging(ctx context.Context, apk string) ([]string, error)
}

type aapt2Command struct {
	runner Runner
	path   string
}

// NewAapt2Command returns an Aapt2Command running the aapt2 binary at path.
func NewAapt2Command(runner Runner, path string) Aapt2Command {
	return &aapt2Command{runner: runner, path: path}
}

func (a *aapt2Command) ConvertApkProtoToBinary(ctx context.Context, protoApk, binaryApk string) error {
	_, err := a.runner.Run(ctx, Command{
		Path: a.path,
		Args: []string{"convert", "--output-format", "binary", "-o", binaryApk, protoApk},
	})
	return err
}

func (a *aapt2Command) DumpBadging(ctx context.Context, apk string) ([]string, error) {
	out, err := a.runner.Run(ctx, Command{
		Path: a.path,
		Args: []string{"dump", "badging", apk},
	})
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(string(out), "\n"), "\n"), nil
}

var badgingPackageName = regexp.MustCompile(`^package: .*\bname='([^']*)'`)

// ParseBadgingPackageName extracts the package name from the output of
// `aapt2 dump badging`, e.g.
//
//	package: name='com.example.app' versionCode='1' versionName='1.0'
func ParseBadgingPackageName(lines []string) (string, error) {
	for _, line := range lines {
		if m := badgingPackageName.FindStringSubmatch(line); m != nil && m[1] != "" {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("unable to determine package name from aapt2 badging output")
}
