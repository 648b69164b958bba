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

// Package model holds the value types shared by the split merger, the APK set
// resolver and the installer: targeting dimensions, module splits and the
// device specification a selection is made against.
package model

import (
	"fmt"
	"strings"
)

// Abi mirrors the AbiAlias enum of the bundle protos. The numeric values are
// the ones used on the wire.
type Abi int32

const (
	UnspecifiedCpuArchitecture Abi = iota
	Armeabi
	ArmeabiV7a
	Arm64V8a
	X86
	X86_64
	Mips
	Mips64
	Riscv64
)

var abiAliases = [...]string{
	UnspecifiedCpuArchitecture: "UNSPECIFIED_CPU_ARCHITECTURE",
	Armeabi:                    "ARMEABI",
	ArmeabiV7a:                 "ARMEABI_V7A",
	Arm64V8a:                   "ARM64_V8A",
	X86:                        "X86",
	X86_64:                     "X86_64",
	Mips:                       "MIPS",
	Mips64:                     "MIPS64",
	Riscv64:                    "RISCV64",
}

// Names as reported by ro.product.cpu.abilist and used in lib/ directories.
var abiPlatformNames = [...]string{
	UnspecifiedCpuArchitecture: "",
	Armeabi:                    "armeabi",
	ArmeabiV7a:                 "armeabi-v7a",
	Arm64V8a:                   "arm64-v8a",
	X86:                        "x86",
	X86_64:                     "x86_64",
	Mips:                       "mips",
	Mips64:                     "mips64",
	Riscv64:                    "riscv64",
}

func (a Abi) valid() bool {
	return a >= 0 && int(a) < len(abiAliases)
}

func (a Abi) String() string {
	if !a.valid() {
		return fmt.Sprintf("Abi(%d)", int32(a))
	}
	return abiAliases[a]
}

// PlatformName returns the name the platform uses for the ABI, e.g. "arm64-v8a".
func (a Abi) PlatformName() string {
	if !a.valid() {
		return ""
	}
	return abiPlatformNames[a]
}

// ParseAbi accepts either the alias ("ARM64_V8A") or the platform name
// ("arm64-v8a") of an ABI.
func ParseAbi(s string) (Abi, error) {
	for i := range abiAliases {
		if s == abiAliases[i] || (s != "" && s == abiPlatformNames[i]) {
			return Abi(i), nil
		}
	}
	return UnspecifiedCpuArchitecture, fmt.Errorf("bad ABI value: %q", s)
}

// AbiSet is an unordered set of ABIs. It is a plain integer so that it can be
// part of a comparable targeting key.
type AbiSet uint32

func NewAbiSet(abis ...Abi) AbiSet {
	var s AbiSet
	for _, a := range abis {
		if a.valid() {
			s |= 1 << uint(a)
		}
	}
	return s
}

func (s AbiSet) Contains(a Abi) bool {
	return a.valid() && s&(1<<uint(a)) != 0
}

func (s AbiSet) IsEmpty() bool {
	return s == 0
}

// Abis returns the members of the set in alias order.
func (s AbiSet) Abis() []Abi {
	var ret []Abi
	for i := range abiAliases {
		if s.Contains(Abi(i)) {
			ret = append(ret, Abi(i))
		}
	}
	return ret
}

func (s AbiSet) String() string {
	var names []string
	for _, a := range s.Abis() {
		names = append(names, a.String())
	}
	return strings.Join(names, ",")
}

// ScreenDensity mirrors the DensityAlias enum of the bundle protos.
type ScreenDensity int32

const (
	DensityUnspecified ScreenDensity = iota
	NoDpi
	Ldpi
	Mdpi
	Tvdpi
	Hdpi
	Xhdpi
	Xxhdpi
	Xxxhdpi
)

var densityAliases = [...]string{
	DensityUnspecified: "DENSITY_UNSPECIFIED",
	NoDpi:              "NODPI",
	Ldpi:               "LDPI",
	Mdpi:               "MDPI",
	Tvdpi:              "TVDPI",
	Hdpi:               "HDPI",
	Xhdpi:              "XHDPI",
	Xxhdpi:             "XXHDPI",
	Xxxhdpi:            "XXXHDPI",
}

var densityDpis = [...]int32{
	Ldpi:    120,
	Mdpi:    160,
	Tvdpi:   213,
	Hdpi:    240,
	Xhdpi:   320,
	Xxhdpi:  480,
	Xxxhdpi: 640,
}

func (d ScreenDensity) valid() bool {
	return d >= 0 && int(d) < len(densityAliases)
}

func (d ScreenDensity) String() string {
	if !d.valid() {
		return fmt.Sprintf("ScreenDensity(%d)", int32(d))
	}
	return densityAliases[d]
}

// Dpi returns the dots-per-inch value of the density bucket, or 0 for
// DENSITY_UNSPECIFIED and NODPI.
func (d ScreenDensity) Dpi() int32 {
	if !d.valid() {
		return 0
	}
	return densityDpis[d]
}

// ParseScreenDensity accepts a density alias in any case, e.g. "HDPI" or "hdpi".
func ParseScreenDensity(s string) (ScreenDensity, error) {
	for i, name := range densityAliases {
		if strings.EqualFold(s, name) {
			return ScreenDensity(i), nil
		}
	}
	return DensityUnspecified, fmt.Errorf("bad screen density value: %q", s)
}

// TextureCompressionFormat mirrors the TextureCompressionFormatAlias enum of
// the bundle protos.
type TextureCompressionFormat int32

const (
	UnspecifiedTextureCompressionFormat TextureCompressionFormat = iota
	Etc1Rgb8
	Paletted
	ThreeDc
	Atc
	Latc
	Dxt1
	S3tc
	Pvrtc
	Astc
	Etc2
)

var tcfAliases = [...]string{
	UnspecifiedTextureCompressionFormat: "UNSPECIFIED_TEXTURE_COMPRESSION_FORMAT",
	Etc1Rgb8:                            "ETC1_RGB8",
	Paletted:                            "PALETTED",
	ThreeDc:                             "THREE_DC",
	Atc:                                 "ATC",
	Latc:                                "LATC",
	Dxt1:                                "DXT1",
	S3tc:                                "S3TC",
	Pvrtc:                               "PVRTC",
	Astc:                                "ASTC",
	Etc2:                                "ETC2",
}

// Suffixes used in split names and asset directory names (#tcf_astc).
var tcfSuffixes = [...]string{
	Etc1Rgb8: "etc1_rgb8",
	Paletted: "paletted",
	ThreeDc:  "3dc",
	Atc:      "atc",
	Latc:     "latc",
	Dxt1:     "dxt1",
	S3tc:     "s3tc",
	Pvrtc:    "pvrtc",
	Astc:     "astc",
	Etc2:     "etc2",
}

func (t TextureCompressionFormat) valid() bool {
	return t >= 0 && int(t) < len(tcfAliases)
}

func (t TextureCompressionFormat) String() string {
	if !t.valid() {
		return fmt.Sprintf("TextureCompressionFormat(%d)", int32(t))
	}
	return tcfAliases[t]
}

// Suffix returns the name used for the format in split file names.
func (t TextureCompressionFormat) Suffix() string {
	if !t.valid() {
		return ""
	}
	return tcfSuffixes[t]
}

// ParseTextureCompressionFormat accepts the alias ("ASTC") or the split
// suffix ("astc", "3dc") of a texture compression format.
func ParseTextureCompressionFormat(s string) (TextureCompressionFormat, error) {
	for i := range tcfAliases {
		if strings.EqualFold(s, tcfAliases[i]) || (s != "" && s == tcfSuffixes[i]) {
			return TextureCompressionFormat(i), nil
		}
	}
	return UnspecifiedTextureCompressionFormat, fmt.Errorf("bad texture compression format: %q", s)
}
