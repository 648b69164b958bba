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

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// PayloadRef points at the bytes backing a part of a split: the file they are
// read from and the hex sha256 of the content.
type PayloadRef struct {
	Path   string
	Digest string
}

func NewPayloadRef(path string, content []byte) PayloadRef {
	sum := sha256.Sum256(content)
	return PayloadRef{Path: path, Digest: hex.EncodeToString(sum[:])}
}

// ReadPayloadRef hashes the file at path.
func ReadPayloadRef(path string) (PayloadRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return PayloadRef{}, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return PayloadRef{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return PayloadRef{Path: path, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

type AndroidManifest struct {
	PackageName string
	SplitID     string
	Payload     PayloadRef
}

type ResourceTable struct {
	Payload PayloadRef
}

// NativeLibraries is the native code configuration of a split (the
// NativeLibraries proto of the bundle).
type NativeLibraries struct {
	Payload PayloadRef
}

// ModuleEntry is a single file of a split.
type ModuleEntry struct {
	Path    string
	Content PayloadRef
}

// ModuleSplit is a package fragment of one bundle module, targeted at the
// devices matching Targeting.
type ModuleSplit struct {
	Targeting       TargetingKey
	AndroidManifest Optional[AndroidManifest]
	ResourceTable   Optional[ResourceTable]
	NativeConfig    Optional[NativeLibraries]
	// ModuleName is empty when unknown.
	ModuleName  string
	MasterSplit bool
	Entries     []ModuleEntry
}

// Name returns the file name the split is written under, following
// bundletool's "<module>-master.apk" / "<module>-<suffix>.apk" scheme.
func (s *ModuleSplit) Name() string {
	module := s.ModuleName
	if module == "" {
		module = "base"
	}
	if s.MasterSplit || s.Targeting.IsDefault() {
		return module + "-master.apk"
	}
	return module + "-" + s.Targeting.Suffix() + ".apk"
}

func (s *ModuleSplit) String() string {
	return fmt.Sprintf("%s%s (%d entries)", s.ModuleName, s.Targeting, len(s.Entries))
}
