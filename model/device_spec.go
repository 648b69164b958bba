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

const (
	AndroidLApiVersion = 21
	AndroidMApiVersion = 23
)

// DeviceSpec is a snapshot of the configuration of a device. Empty list
// dimensions and a zero ScreenDensity place no constraint on selection.
type DeviceSpec struct {
	SdkVersion int32
	// SupportedAbis is in order of preference, most preferred first.
	SupportedAbis []Abi
	// ScreenDensity in dpi.
	ScreenDensity    int32
	SupportedLocales []string
	// SupportedTextureCompressionFormats is in order of preference.
	SupportedTextureCompressionFormats []TextureCompressionFormat
	CountryCode                        string
}

// Languages returns the language part of every supported locale.
func (s DeviceSpec) Languages() map[string]bool {
	ret := make(map[string]bool)
	for _, l := range s.SupportedLocales {
		lang, _, _ := strings.Cut(strings.ReplaceAll(l, "_", "-"), "-")
		if lang != "" {
			ret[strings.ToLower(lang)] = true
		}
	}
	return ret
}

func (s DeviceSpec) String() string {
	var abis []string
	for _, a := range s.SupportedAbis {
		abis = append(abis, a.PlatformName())
	}
	return fmt.Sprintf("sdk=%d abis=[%s] density=%d locales=[%s]", s.SdkVersion,
		strings.Join(abis, ","), s.ScreenDensity, strings.Join(s.SupportedLocales, ","))
}
