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
	"fmt"
	"strings"
)

// TargetingKey is the set of device configuration dimensions a split is built
// for. The zero value targets every device. Keys compare with ==, so they can
// be used directly as map keys when grouping splits.
type TargetingKey struct {
	Abis                     AbiSet
	ScreenDensity            ScreenDensity
	Language                 string
	MinSdkVersion            int32
	TextureCompressionFormat TextureCompressionFormat
}

// IsDefault reports whether no dimension is populated.
func (k TargetingKey) IsDefault() bool {
	return k == TargetingKey{}
}

// Suffix returns the split name suffix for the key, e.g. "arm64_v8a_hdpi".
// The default key has an empty suffix.
func (k TargetingKey) Suffix() string {
	var parts []string
	for _, a := range k.Abis.Abis() {
		parts = append(parts, strings.ReplaceAll(a.PlatformName(), "-", "_"))
	}
	if k.ScreenDensity != DensityUnspecified {
		parts = append(parts, strings.ToLower(k.ScreenDensity.String()))
	}
	if k.Language != "" {
		parts = append(parts, k.Language)
	}
	if k.TextureCompressionFormat != UnspecifiedTextureCompressionFormat {
		parts = append(parts, k.TextureCompressionFormat.Suffix())
	}
	if k.MinSdkVersion > 0 {
		parts = append(parts, fmt.Sprintf("sdk%d", k.MinSdkVersion))
	}
	return strings.Join(parts, "_")
}

func (k TargetingKey) String() string {
	if k.IsDefault() {
		return "{}"
	}
	var parts []string
	if !k.Abis.IsEmpty() {
		parts = append(parts, "abi="+k.Abis.String())
	}
	if k.ScreenDensity != DensityUnspecified {
		parts = append(parts, "density="+k.ScreenDensity.String())
	}
	if k.Language != "" {
		parts = append(parts, "language="+k.Language)
	}
	if k.MinSdkVersion > 0 {
		parts = append(parts, fmt.Sprintf("sdk>=%d", k.MinSdkVersion))
	}
	if k.TextureCompressionFormat != UnspecifiedTextureCompressionFormat {
		parts = append(parts, "tcf="+k.TextureCompressionFormat.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
