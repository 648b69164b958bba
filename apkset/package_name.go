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

package apkset

import (
	"context"
	"fmt"

	"android/bundletool/tools"
)

// Aapt2Supplier returns the aapt2 command to inspect APKs with. It is only
// called when a toc lacks the package name.
type Aapt2Supplier func() (tools.Aapt2Command, error)

// PackageName returns the package name recorded in the toc. When the toc
// doesn't have one, a representative APK is extracted into tmpDir and the
// name is read from its badging.
func (apkSet *ApkSet) PackageName(ctx context.Context, tmpDir string, aapt2 Aapt2Supplier) (string, error) {
	toc, err := apkSet.Toc()
	if err != nil {
		return "", err
	}
	if toc.PackageName != "" {
		return toc.PackageName, nil
	}

	entry := representativeApk(toc)
	if entry == "" {
		return "", fmt.Errorf("%s: no APK to read the package name from", apkSet.path)
	}
	files, err := apkSet.Extract(ctx, SelectionResult{Entries: []string{entry}}, tmpDir)
	if err != nil {
		return "", err
	}
	cmd, err := aapt2()
	if err != nil {
		return "", err
	}
	badging, err := cmd.DumpBadging(ctx, files[0])
	if err != nil {
		return "", err
	}
	name, err := tools.ParseBadgingPackageName(badging)
	if err != nil {
		return "", fmt.Errorf("%s: %w", apkSet.path, err)
	}
	return name, nil
}

// representativeApk prefers the master split of the base module, then any
// standalone APK, then the first APK of the toc.
func representativeApk(toc *Toc) string {
	var standalone, first string
	for _, v := range toc.Variants {
		for _, m := range v.ModuleApks {
			for _, apk := range m.Apks {
				if apk.Path == "" {
					continue
				}
				if first == "" {
					first = apk.Path
				}
				if apk.Split != nil && apk.Split.IsMasterSplit && moduleName(m) == baseModuleName {
					return apk.Path
				}
				if apk.Standalone != nil && standalone == "" {
					standalone = apk.Path
				}
			}
		}
	}
	if standalone != "" {
		return standalone
	}
	return first
}
