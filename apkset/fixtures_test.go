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
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"android/bundletool/model"
)

// writeApkSet creates an APK set in dir with the given toc and an entry with
// its own path as content for every APK of the toc.
func writeApkSet(t *testing.T, dir, name string, toc *Toc) string {
	t.Helper()
	entries := map[string]string{}
	for _, v := range toc.Variants {
		for _, m := range v.ModuleApks {
			for _, apk := range m.Apks {
				entries[apk.Path] = apk.Path
			}
		}
	}
	return writeZip(t, filepath.Join(dir, name), map[string][]byte{tocEntry: MarshalToc(toc)}, entries)
}

func writeZip(t *testing.T, path string, raw map[string][]byte, entries map[string]string) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	write := func(name string, content []byte) {
		e, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range raw {
		write(name, content)
	}
	for name, content := range entries {
		write(name, []byte(content))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func sdk(minSdk int32) *SdkVersionTargeting {
	return &SdkVersionTargeting{Value: []SdkVersion{{Min: model.Some(minSdk)}}}
}

func abiTargeting(value []model.Abi, alternatives ...model.Abi) *AbiTargeting {
	return &AbiTargeting{Value: value, Alternatives: alternatives}
}

func density(value model.ScreenDensity, alternatives ...model.ScreenDensity) *ScreenDensityTargeting {
	t := &ScreenDensityTargeting{Value: []ScreenDensity{{Alias: value}}}
	for _, a := range alternatives {
		t.Alternatives = append(t.Alternatives, ScreenDensity{Alias: a})
	}
	return t
}

func installTime(name string) *ModuleMetadata {
	return &ModuleMetadata{Name: name, DeliveryType: InstallTime}
}

func master(path string) *ApkDescription {
	return &ApkDescription{
		Path:      path,
		Split:     &SplitApkMetadata{IsMasterSplit: true},
		Targeting: &ApkTargeting{},
	}
}

func configSplit(path, id string, targeting *ApkTargeting) *ApkDescription {
	return &ApkDescription{
		Path:      path,
		Split:     &SplitApkMetadata{SplitID: id},
		Targeting: targeting,
	}
}

// splitToc is a typical toc: a standalone variant for pre-L devices and a
// split variant with ABI and density config splits.
func splitToc() *Toc {
	allDensities := []model.ScreenDensity{model.Ldpi, model.Mdpi, model.Hdpi, model.Xhdpi, model.Xxhdpi}
	densitySplit := func(d model.ScreenDensity) *ApkDescription {
		var alternatives []model.ScreenDensity
		for _, a := range allDensities {
			if a != d {
				alternatives = append(alternatives, a)
			}
		}
		return configSplit("splits/base-"+strings.ToLower(d.String())+".apk", "config."+strings.ToLower(d.String()),
			&ApkTargeting{ScreenDensity: density(d, alternatives...)})
	}
	var densitySplits []*ApkDescription
	for _, d := range allDensities {
		densitySplits = append(densitySplits, densitySplit(d))
	}

	return &Toc{
		PackageName:       "com.example.app",
		BundletoolVersion: "1.15.6",
		Variants: []*Variant{
			{
				VariantNumber: 0,
				Targeting:     &VariantTargeting{SdkVersion: &SdkVersionTargeting{Value: []SdkVersion{{Min: model.Some[int32](1)}}, Alternatives: []SdkVersion{{Min: model.Some[int32](21)}}}},
				ModuleApks: []*ModuleApks{{
					Metadata: installTime("base"),
					Apks: []*ApkDescription{{
						Path:       "standalones/standalone-hdpi.apk",
						Standalone: &StandaloneApkMetadata{FusedModuleNames: []string{"base"}},
						Targeting:  &ApkTargeting{},
					}},
				}},
			},
			{
				VariantNumber: 1,
				Targeting:     &VariantTargeting{SdkVersion: &SdkVersionTargeting{Value: []SdkVersion{{Min: model.Some[int32](21)}}, Alternatives: []SdkVersion{{Min: model.Some[int32](1)}}}},
				ModuleApks: []*ModuleApks{
					{
						Metadata: installTime("base"),
						Apks: append([]*ApkDescription{
							master("splits/base-master.apk"),
							configSplit("splits/base-arm64_v8a.apk", "config.arm64_v8a",
								&ApkTargeting{Abi: abiTargeting([]model.Abi{model.Arm64V8a}, model.X86_64)}),
							configSplit("splits/base-x86_64.apk", "config.x86_64",
								&ApkTargeting{Abi: abiTargeting([]model.Abi{model.X86_64}, model.Arm64V8a)}),
							configSplit("splits/base-fr.apk", "config.fr",
								&ApkTargeting{Language: &LanguageTargeting{Value: []string{"fr"}}}),
						}, densitySplits...),
					},
					{
						Metadata: &ModuleMetadata{Name: "feature", DeliveryType: OnDemand},
						Apks:     []*ApkDescription{master("splits/feature-master.apk")},
					},
					{
						Metadata: installTime("assets"),
						Apks:     []*ApkDescription{master("splits/assets-master.apk")},
					},
				},
			},
		},
	}
}
