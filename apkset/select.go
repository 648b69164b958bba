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
	"fmt"
	"slices"
	"strconv"
	"strings"

	"android/bundletool/model"
)

// SelectionResult lists the APK set entries selected for a device.
type SelectionResult struct {
	// Entries are paths inside the APK set, in toc order.
	Entries []string
	// Modules are the names of the modules the entries belong to, in toc
	// order. Standalone and universal APKs belong to "base".
	Modules       []string
	VariantNumber uint32
}

func (r SelectionResult) IsEmpty() bool {
	return len(r.Entries) == 0
}

// SelectApks returns the entries of the best matching variant: the matching
// variant with the highest variant number, with the APKs of every
// install-time module matching config.
func SelectApks(toc *Toc, config TargetConfig) SelectionResult {
	result := selectApks(toc, config, true)
	if result.IsEmpty() {
		// If there are no matches where all of the ABIs are available in the
		// TargetConfig, then search again with a looser requirement of at
		// least one matching ABI.
		result = selectApks(toc, config, false)
	}
	return result
}

func selectApks(toc *Toc, config TargetConfig, allAbisMustMatch bool) SelectionResult {
	var best *Variant
	for _, variant := range toc.Variants {
		if !(variantTargetingMatcher{variant.Targeting}.matches(config, allAbisMustMatch)) {
			continue
		}
		if !hasMatchingApk(variant, config, allAbisMustMatch) || !supportsDeviceAbis(variant, config) {
			continue
		}
		if best == nil || variant.VariantNumber > best.VariantNumber {
			best = variant
		}
	}
	if best == nil {
		return SelectionResult{}
	}

	result := SelectionResult{VariantNumber: best.VariantNumber}
	for _, m := range best.ModuleApks {
		if !(moduleMetadataMatcher{m.Metadata}.matches(config)) {
			continue
		}
		selected := false
		for _, apk := range m.Apks {
			if (apkDescriptionMatcher{apk}).matches(config, allAbisMustMatch) {
				result.Entries = append(result.Entries, apk.Path)
				selected = true
			}
		}
		if selected {
			result.Modules = append(result.Modules, moduleName(m))
		}
	}
	return result
}

func hasMatchingApk(variant *Variant, config TargetConfig, allAbisMustMatch bool) bool {
	for _, m := range variant.ModuleApks {
		if !(moduleMetadataMatcher{m.Metadata}.matches(config)) {
			continue
		}
		for _, apk := range m.Apks {
			if (apkDescriptionMatcher{apk}).matches(config, allAbisMustMatch) {
				return true
			}
		}
	}
	return false
}

// supportsDeviceAbis rejects variants with native code for other ABIs only:
// installing them without their ABI split would leave the app without its
// native libraries.
func supportsDeviceAbis(variant *Variant, config TargetConfig) bool {
	if config.anyAbi() {
		return true
	}
	abis := config.abiIndex()
	for _, m := range variant.ModuleApks {
		if !(moduleMetadataMatcher{m.Metadata}.matches(config)) {
			continue
		}
		for _, apk := range m.Apks {
			if apk.Targeting == nil || apk.Targeting.Abi == nil {
				continue
			}
			supported := false
			for _, abi := range slices.Concat(apk.Targeting.Abi.Value, apk.Targeting.Abi.Alternatives) {
				if _, ok := abis[abi]; ok {
					supported = true
					break
				}
			}
			if !supported {
				return false
			}
		}
	}
	return true
}

const baseModuleName = "base"

func moduleName(m *ModuleApks) string {
	if m.Metadata == nil || m.Metadata.Name == "" {
		return baseModuleName
	}
	return m.Metadata.Name
}

// IncompatibleDeviceError is returned when no APK of an APK set can be
// installed on a device.
type IncompatibleDeviceError struct {
	// Dimension is the targeting dimension that ruled out every variant, or
	// "device" when no single one did.
	Dimension string
	Required  string
	Actual    string
}

func (e *IncompatibleDeviceError) Error() string {
	switch e.Dimension {
	case "sdk":
		return fmt.Sprintf("the app doesn't support the SDK version of the device: required %s, actual %s",
			e.Required, e.Actual)
	case "abi":
		return fmt.Sprintf("the app doesn't support any of the ABIs of the device: required one of %s, actual %s",
			e.Required, e.Actual)
	}
	return fmt.Sprintf("no APKs match the device configuration: %s", e.Actual)
}

// incompatibility explains why SelectApks found nothing for config.
func incompatibility(toc *Toc, config TargetConfig) *IncompatibleDeviceError {
	if !config.SkipSdkCheck && config.SdkVersion > 0 {
		lowest, found := int32(0), false
		for _, v := range toc.Variants {
			minSdk := variantMinSdk(v)
			if !found || minSdk < lowest {
				lowest, found = minSdk, true
			}
		}
		if found && lowest > config.SdkVersion &&
			!(config.AllowPrereleased && lowest == PreReleaseSdkVersion) {
			return &IncompatibleDeviceError{
				Dimension: "sdk",
				Required:  ">= " + strconv.Itoa(int(lowest)),
				Actual:    strconv.Itoa(int(config.SdkVersion)),
			}
		}
	}

	if !config.anyAbi() {
		if targeted := targetedAbis(toc); len(targeted) > 0 {
			supported := false
			for _, abi := range config.SupportedAbis {
				if slices.Contains(targeted, abi) {
					supported = true
					break
				}
			}
			if !supported {
				return &IncompatibleDeviceError{
					Dimension: "abi",
					Required:  abiList(targeted),
					Actual:    abiList(config.SupportedAbis),
				}
			}
		}
	}

	return &IncompatibleDeviceError{Dimension: "device", Actual: config.DeviceSpec.String()}
}

func variantMinSdk(v *Variant) int32 {
	if v.Targeting == nil || v.Targeting.SdkVersion == nil || len(v.Targeting.SdkVersion.Value) == 0 {
		return 1
	}
	return v.Targeting.SdkVersion.Value[0].Min.OrElse(1)
}

// targetedAbis returns every ABI any variant or APK targets, or nil when
// some variant has native code for all ABIs.
func targetedAbis(toc *Toc) []model.Abi {
	var ret []model.Abi
	add := func(abis ...model.Abi) {
		for _, abi := range abis {
			if !slices.Contains(ret, abi) {
				ret = append(ret, abi)
			}
		}
	}
	for _, v := range toc.Variants {
		variantTargeted := false
		if t := v.Targeting; t != nil {
			if t.Abi != nil {
				add(t.Abi.Value...)
				variantTargeted = true
			}
			if t.MultiAbi != nil {
				for _, abis := range t.MultiAbi.Value {
					add(abis...)
				}
				variantTargeted = true
			}
		}
		apkTargeted := false
		for _, m := range v.ModuleApks {
			for _, apk := range m.Apks {
				if apk.Targeting != nil && apk.Targeting.Abi != nil {
					add(apk.Targeting.Abi.Value...)
					apkTargeted = true
				}
			}
		}
		if !variantTargeted && !apkTargeted {
			return nil
		}
	}
	return ret
}

func abiList(abis []model.Abi) string {
	var names []string
	for _, abi := range abis {
		names = append(names, abi.PlatformName())
	}
	return "[" + strings.Join(names, ", ") + "]"
}
