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

// Package install installs APKs from APK sets on a device in a single atomic
// multi-package session.
package install

import (
	"path/filepath"
	"strings"
)

// InstallableApk is an APK or APEX file on disk, along with the name of the
// package it belongs to.
type InstallableApk struct {
	Path        string
	PackageName string
}

func (a InstallableApk) IsApex() bool {
	return strings.EqualFold(filepath.Ext(a.Path), ".apex")
}

// Batch groups installable files by package, keeping packages in the order
// they were first added. The files of a package are always installed
// together.
type Batch struct {
	packages []string
	units    map[string][]InstallableApk
}

func NewBatch(apks ...InstallableApk) *Batch {
	b := &Batch{units: make(map[string][]InstallableApk)}
	for _, apk := range apks {
		b.Add(apk)
	}
	return b
}

func (b *Batch) Add(apk InstallableApk) {
	if b.units == nil {
		b.units = make(map[string][]InstallableApk)
	}
	if _, ok := b.units[apk.PackageName]; !ok {
		b.packages = append(b.packages, apk.PackageName)
	}
	b.units[apk.PackageName] = append(b.units[apk.PackageName], apk)
}

// Packages returns the package names in insertion order.
func (b *Batch) Packages() []string {
	return append([]string(nil), b.packages...)
}

// Units returns the files of a package in insertion order.
func (b *Batch) Units(packageName string) []InstallableApk {
	return append([]InstallableApk(nil), b.units[packageName]...)
}

// Len returns the number of packages.
func (b *Batch) Len() int {
	return len(b.packages)
}

func (b *Batch) IsEmpty() bool {
	return b.Len() == 0
}

// Filter returns a new batch with the packages keep returns true for.
func (b *Batch) Filter(keep func(packageName string) bool) *Batch {
	ret := NewBatch()
	for _, pkg := range b.packages {
		if keep(pkg) {
			for _, apk := range b.units[pkg] {
				ret.Add(apk)
			}
		}
	}
	return ret
}

func (b *Batch) HasApex() bool {
	for _, units := range b.units {
		for _, apk := range units {
			if apk.IsApex() {
				return true
			}
		}
	}
	return false
}
