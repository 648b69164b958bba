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

// Package apkwriter turns module splits into proto-format APKs. Splits are
// described in a YAML file, merged by targeting and written as zip files,
// optionally converted to binary format with aapt2.
package apkwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"android/bundletool/model"
)

// Descriptor is the YAML description of a list of splits:
//
//	splits:
//	  - module: base
//	    master: true
//	    manifest: {file: base/AndroidManifest.xml, package: com.example.app}
//	    resources: base/resources.pb
//	  - module: base
//	    targeting: {abis: [arm64-v8a]}
//	    native: base/native.pb
//	    entries:
//	      - {path: lib/arm64-v8a/libfoo.so, file: out/arm64/libfoo.so}
//
// Relative files are resolved against the directory of the descriptor.
type Descriptor struct {
	Splits []SplitDescriptor `yaml:"splits"`
}

type SplitDescriptor struct {
	Module    string              `yaml:"module"`
	Master    bool                `yaml:"master"`
	Targeting TargetingDescriptor `yaml:"targeting"`
	Manifest  *ManifestDescriptor `yaml:"manifest"`
	Resources string              `yaml:"resources"`
	Native    string              `yaml:"native"`
	Entries   []EntryDescriptor   `yaml:"entries"`
}

type TargetingDescriptor struct {
	Abis     []string `yaml:"abis"`
	Density  string   `yaml:"density"`
	Language string   `yaml:"language"`
	MinSdk   int32    `yaml:"min_sdk"`
	Texture  string   `yaml:"texture_compression_format"`
}

type ManifestDescriptor struct {
	File    string `yaml:"file"`
	Package string `yaml:"package"`
	SplitID string `yaml:"split_id"`
}

type EntryDescriptor struct {
	Path string `yaml:"path"`
	File string `yaml:"file"`
}

// LoadDescriptor reads the descriptor at path and builds the splits it
// describes. Every referenced file is hashed, so later changes to it are
// detected when the split is written.
func LoadDescriptor(path string) ([]*model.ModuleSplit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)

	var ret []*model.ModuleSplit
	for i, sd := range desc.Splits {
		split, err := sd.toSplit(dir)
		if err != nil {
			return nil, fmt.Errorf("%s: split %d: %w", path, i, err)
		}
		ret = append(ret, split)
	}
	return ret, nil
}

func resolve(dir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func (sd SplitDescriptor) toSplit(dir string) (*model.ModuleSplit, error) {
	targeting, err := sd.Targeting.toKey()
	if err != nil {
		return nil, err
	}
	split := &model.ModuleSplit{
		Targeting:   targeting,
		ModuleName:  sd.Module,
		MasterSplit: sd.Master,
	}

	if m := sd.Manifest; m != nil {
		ref, err := model.ReadPayloadRef(resolve(dir, m.File))
		if err != nil {
			return nil, err
		}
		split.AndroidManifest = model.Some(model.AndroidManifest{
			PackageName: m.Package,
			SplitID:     m.SplitID,
			Payload:     ref,
		})
	}
	if sd.Resources != "" {
		ref, err := model.ReadPayloadRef(resolve(dir, sd.Resources))
		if err != nil {
			return nil, err
		}
		split.ResourceTable = model.Some(model.ResourceTable{Payload: ref})
	}
	if sd.Native != "" {
		ref, err := model.ReadPayloadRef(resolve(dir, sd.Native))
		if err != nil {
			return nil, err
		}
		split.NativeConfig = model.Some(model.NativeLibraries{Payload: ref})
	}
	for _, e := range sd.Entries {
		if e.Path == "" || strings.HasPrefix(e.Path, "/") {
			return nil, fmt.Errorf("invalid entry path %q", e.Path)
		}
		ref, err := model.ReadPayloadRef(resolve(dir, e.File))
		if err != nil {
			return nil, err
		}
		split.Entries = append(split.Entries, model.ModuleEntry{Path: e.Path, Content: ref})
	}
	return split, nil
}

func (td TargetingDescriptor) toKey() (model.TargetingKey, error) {
	key := model.TargetingKey{
		Language:      strings.ToLower(td.Language),
		MinSdkVersion: td.MinSdk,
	}
	var abis []model.Abi
	for _, name := range td.Abis {
		abi, err := model.ParseAbi(name)
		if err != nil {
			return key, err
		}
		abis = append(abis, abi)
	}
	key.Abis = model.NewAbiSet(abis...)
	if td.Density != "" {
		d, err := model.ParseScreenDensity(td.Density)
		if err != nil {
			return key, err
		}
		key.ScreenDensity = d
	}
	if td.Texture != "" {
		f, err := model.ParseTextureCompressionFormat(td.Texture)
		if err != nil {
			return key, err
		}
		key.TextureCompressionFormat = f
	}
	return key, nil
}
