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

// Package apkset reads APK sets (.apks archives produced by bundletool
// build-apks) and selects the APKs matching a device configuration.
package apkset

import (
	"android/bundletool/model"
)

// Toc is the table of contents of an APK set, stored in its toc.pb entry as
// a serialized BuildApksResult message.
type Toc struct {
	PackageName       string
	Variants          []*Variant
	BundletoolVersion string
}

// Variant is a set of APKs that is installed on a device as a whole. Higher
// variant numbers are preferred.
type Variant struct {
	Targeting     *VariantTargeting
	ModuleApks    []*ModuleApks
	VariantNumber uint32
}

// ModuleApks holds the APKs generated for one module of the bundle.
type ModuleApks struct {
	Metadata *ModuleMetadata
	Apks     []*ApkDescription
}

type DeliveryType int32

const (
	UnknownDeliveryType DeliveryType = iota
	InstallTime
	OnDemand
	FastFollow
)

type ModuleMetadata struct {
	Name         string
	IsInstant    bool
	Dependencies []string
	Targeting    *ModuleTargeting
	DeliveryType DeliveryType
}

type ApkDescription struct {
	Targeting *ApkTargeting
	// Path of the APK inside the APK set.
	Path       string
	Split      *SplitApkMetadata
	Standalone *StandaloneApkMetadata
	Instant    bool
	System     bool
	AssetSlice bool
	Apex       bool
}

type SplitApkMetadata struct {
	SplitID       string
	IsMasterSplit bool
}

type StandaloneApkMetadata struct {
	FusedModuleNames []string
}

type VariantTargeting struct {
	SdkVersion               *SdkVersionTargeting
	Abi                      *AbiTargeting
	ScreenDensity            *ScreenDensityTargeting
	MultiAbi                 *MultiAbiTargeting
	TextureCompressionFormat *TextureCompressionFormatTargeting
}

type ApkTargeting struct {
	Abi                      *AbiTargeting
	Language                 *LanguageTargeting
	ScreenDensity            *ScreenDensityTargeting
	SdkVersion               *SdkVersionTargeting
	TextureCompressionFormat *TextureCompressionFormatTargeting
	MultiAbi                 *MultiAbiTargeting
}

type ModuleTargeting struct {
	SdkVersion    *SdkVersionTargeting
	UserCountries *UserCountriesTargeting
}

// Every targeting dimension lists the values the APK targets and the values
// other APKs of the same variant or module target instead.

type AbiTargeting struct {
	Value, Alternatives []model.Abi
}

type MultiAbiTargeting struct {
	Value, Alternatives [][]model.Abi
}

// ScreenDensity is either a density bucket or an explicit dpi value.
type ScreenDensity struct {
	Alias model.ScreenDensity
	Dpi   int32
}

// DpiValue returns the dpi this density stands for.
func (d ScreenDensity) DpiValue() int32 {
	if d.Alias != model.DensityUnspecified {
		return d.Alias.Dpi()
	}
	return d.Dpi
}

type ScreenDensityTargeting struct {
	Value, Alternatives []ScreenDensity
}

type SdkVersion struct {
	Min model.Optional[int32]
}

type SdkVersionTargeting struct {
	Value, Alternatives []SdkVersion
}

type LanguageTargeting struct {
	Value, Alternatives []string
}

type TextureCompressionFormatTargeting struct {
	Value, Alternatives []model.TextureCompressionFormat
}

type UserCountriesTargeting struct {
	CountryCodes []string
	Exclude      bool
}
