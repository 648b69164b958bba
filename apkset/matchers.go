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
	"math"
	"slices"
	"sort"
	"strings"

	"android/bundletool/model"
)

// PreReleaseSdkVersion is the minimum SDK version bundletool assigns to APKs
// built against a preview platform.
const PreReleaseSdkVersion = 10000

// TargetConfig is the device configuration APKs are selected for. Dimensions
// left empty in the DeviceSpec do not constrain the selection.
type TargetConfig struct {
	model.DeviceSpec
	AllowPrereleased bool
	SkipSdkCheck     bool
	// Stem is the base name of the entries written by WriteApks.
	Stem string
}

// abiIndex maps every supported ABI to its preference rank, lower is better.
func (c TargetConfig) abiIndex() map[model.Abi]int {
	ret := make(map[model.Abi]int, len(c.SupportedAbis))
	for i, abi := range c.SupportedAbis {
		if _, ok := ret[abi]; !ok {
			ret[abi] = i
		}
	}
	return ret
}

func (c TargetConfig) anyAbi() bool {
	return len(c.SupportedAbis) == 0 || slices.Contains(c.SupportedAbis, model.UnspecifiedCpuArchitecture)
}

type abiTargetingMatcher struct {
	*AbiTargeting
}

func (m abiTargetingMatcher) matches(config TargetConfig) bool {
	if m.AbiTargeting == nil || config.anyAbi() {
		return true
	}
	abis := config.abiIndex()
	// Find the one that appears first in the device's ABI list.
	abiIdx := math.MaxInt32
	for _, v := range m.Value {
		if i, ok := abis[v]; ok && i < abiIdx {
			abiIdx = i
		}
	}
	if abiIdx == math.MaxInt32 {
		return false
	}
	// See if any alternatives appear before the above one.
	for _, a := range m.Alternatives {
		if i, ok := abis[a]; ok && i < abiIdx {
			return false
		}
	}
	return true
}

// A higher number means a higher priority.
// This order must be kept identical to bundletool's.
var multiAbiPriorities = map[model.Abi]int{
	model.Armeabi:    1,
	model.ArmeabiV7a: 2,
	model.Arm64V8a:   3,
	model.X86:        4,
	model.X86_64:     5,
	model.Mips:       6,
	model.Mips64:     7,
	model.Riscv64:    8,
}

type multiAbiValue []model.Abi

func (m multiAbiValue) sorted() multiAbiValue {
	ret := append(multiAbiValue{}, m...)
	// Priorities greatest to least.
	sort.Slice(ret, func(i, j int) bool {
		return multiAbiPriorities[ret[i]] > multiAbiPriorities[ret[j]]
	})
	return ret
}

func (m multiAbiValue) compare(other multiAbiValue) int {
	sortedM, sortedOther := m.sorted(), other.sorted()
	for i := 0; i < min(len(sortedM), len(sortedOther)); i++ {
		if p, q := multiAbiPriorities[sortedM[i]], multiAbiPriorities[sortedOther[i]]; p != q {
			if p > q {
				return 1
			}
			return -1
		}
	}
	return len(sortedM) - len(sortedOther)
}

type multiAbiTargetingMatcher struct {
	*MultiAbiTargeting
}

// matches selects the multi-ABI APK with the highest priority among the
// viable ones. With allAbisMustMatch, an APK is only viable if the device
// supports every one of its ABIs, otherwise one supported ABI suffices.
func (m multiAbiTargetingMatcher) matches(config TargetConfig, allAbisMustMatch bool) bool {
	if m.MultiAbiTargeting == nil || config.anyAbi() {
		return true
	}
	abis := config.abiIndex()

	isViable := func(v multiAbiValue) bool {
		numValid := 0
		for _, abi := range v {
			if _, ok := abis[abi]; ok {
				numValid++
			}
		}
		if numValid == 0 {
			return false
		}
		return !allAbisMustMatch || numValid == len(v)
	}

	viable := false
	for _, v := range m.Value {
		if isViable(v) {
			viable = true
			break
		}
	}
	if !viable {
		return false
	}

	// See if there are any viable alternatives with a higher priority.
	for _, alt := range m.Alternatives {
		if !isViable(alt) {
			continue
		}
		for _, v := range m.Value {
			if multiAbiValue(v).compare(alt) < 0 {
				return false
			}
		}
	}
	return true
}

type screenDensityTargetingMatcher struct {
	*ScreenDensityTargeting
}

// matches picks, among the APK's value and its alternatives, the density
// closest to the device's: the smallest one at least as high as the device
// dpi, or the highest one if all are lower. The APK matches if that density
// is one of its values.
func (m screenDensityTargetingMatcher) matches(config TargetConfig) bool {
	if m.ScreenDensityTargeting == nil || config.ScreenDensity <= 0 || len(m.Value) == 0 {
		return true
	}
	best := int32(-1)
	for _, d := range slices.Concat(m.Value, m.Alternatives) {
		if betterDensity(d.DpiValue(), best, config.ScreenDensity) {
			best = d.DpiValue()
		}
	}
	for _, d := range m.Value {
		if d.DpiValue() == best {
			return true
		}
	}
	return false
}

func betterDensity(candidate, current, device int32) bool {
	if current < 0 {
		return true
	}
	switch {
	case candidate >= device && current >= device:
		return candidate < current
	case candidate >= device:
		return true
	case current >= device:
		return false
	}
	return candidate > current
}

type sdkVersionTargetingMatcher struct {
	*SdkVersionTargeting
}

// matches inspects only the value. Even though one of the alternatives may
// match better, variant numbers decide between them.
func (m sdkVersionTargetingMatcher) matches(config TargetConfig) bool {
	if config.SkipSdkCheck || m.SdkVersionTargeting == nil || len(m.Value) == 0 || config.SdkVersion <= 0 {
		return true
	}
	minSdk, ok := m.Value[0].Min.Get()
	return !ok || minSdk <= config.SdkVersion ||
		(config.AllowPrereleased && minSdk == PreReleaseSdkVersion)
}

type languageTargetingMatcher struct {
	*LanguageTargeting
}

// matches accepts APKs for one of the device languages. An APK with no
// value is the fallback for languages none of the alternatives provide.
func (m languageTargetingMatcher) matches(config TargetConfig) bool {
	if m.LanguageTargeting == nil || len(config.SupportedLocales) == 0 {
		return true
	}
	languages := config.Languages()
	if len(m.Value) == 0 {
		for _, a := range m.Alternatives {
			if languages[strings.ToLower(a)] {
				return false
			}
		}
		return true
	}
	for _, v := range m.Value {
		if languages[strings.ToLower(v)] {
			return true
		}
	}
	return false
}

type textureCompressionFormatTargetingMatcher struct {
	*TextureCompressionFormatTargeting
}

func (m textureCompressionFormatTargetingMatcher) matches(config TargetConfig) bool {
	if m.TextureCompressionFormatTargeting == nil || len(config.SupportedTextureCompressionFormats) == 0 {
		return true
	}
	rank := func(formats []model.TextureCompressionFormat) int {
		best := math.MaxInt32
		for _, f := range formats {
			if i := slices.Index(config.SupportedTextureCompressionFormats, f); i >= 0 && i < best {
				best = i
			}
		}
		return best
	}
	valueRank, altRank := rank(m.Value), rank(m.Alternatives)
	if valueRank == math.MaxInt32 {
		// The fallback APK carries no value.
		return len(m.Value) == 0 && altRank == math.MaxInt32
	}
	return valueRank <= altRank
}

type userCountriesTargetingMatcher struct {
	*UserCountriesTargeting
}

// matches requires a known device country unless the list is an exclusion
// list.
func (m userCountriesTargetingMatcher) matches(config TargetConfig) bool {
	if m.UserCountriesTargeting == nil {
		return true
	}
	if config.CountryCode == "" {
		return m.Exclude
	}
	listed := slices.ContainsFunc(m.CountryCodes, func(c string) bool {
		return strings.EqualFold(c, config.CountryCode)
	})
	return listed != m.Exclude
}

type moduleMetadataMatcher struct {
	*ModuleMetadata
}

func (m moduleMetadataMatcher) matches(config TargetConfig) bool {
	return m.ModuleMetadata == nil ||
		(m.DeliveryType == InstallTime &&
			moduleTargetingMatcher{m.Targeting}.matches(config) &&
			!m.IsInstant)
}

type moduleTargetingMatcher struct {
	*ModuleTargeting
}

func (m moduleTargetingMatcher) matches(config TargetConfig) bool {
	return m.ModuleTargeting == nil ||
		(sdkVersionTargetingMatcher{m.SdkVersion}.matches(config) &&
			userCountriesTargetingMatcher{m.UserCountries}.matches(config))
}

type apkDescriptionMatcher struct {
	*ApkDescription
}

func (m apkDescriptionMatcher) matches(config TargetConfig, allAbisMustMatch bool) bool {
	return m.ApkDescription == nil || apkTargetingMatcher{m.Targeting}.matches(config, allAbisMustMatch)
}

type apkTargetingMatcher struct {
	*ApkTargeting
}

func (m apkTargetingMatcher) matches(config TargetConfig, allAbisMustMatch bool) bool {
	return m.ApkTargeting == nil ||
		(abiTargetingMatcher{m.Abi}.matches(config) &&
			languageTargetingMatcher{m.Language}.matches(config) &&
			screenDensityTargetingMatcher{m.ScreenDensity}.matches(config) &&
			sdkVersionTargetingMatcher{m.SdkVersion}.matches(config) &&
			textureCompressionFormatTargetingMatcher{m.TextureCompressionFormat}.matches(config) &&
			multiAbiTargetingMatcher{m.MultiAbi}.matches(config, allAbisMustMatch))
}

type variantTargetingMatcher struct {
	*VariantTargeting
}

func (m variantTargetingMatcher) matches(config TargetConfig, allAbisMustMatch bool) bool {
	if m.VariantTargeting == nil {
		return true
	}
	return sdkVersionTargetingMatcher{m.SdkVersion}.matches(config) &&
		abiTargetingMatcher{m.Abi}.matches(config) &&
		multiAbiTargetingMatcher{m.MultiAbi}.matches(config, allAbisMustMatch) &&
		screenDensityTargetingMatcher{m.ScreenDensity}.matches(config) &&
		textureCompressionFormatTargetingMatcher{m.TextureCompressionFormat}.matches(config)
}
