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

package device

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"android/bundletool/model"
)

var propertyLine = regexp.MustCompile(`^\[([^\]]+)\]: \[(.*)\]$`)

// ParseProperties parses the output of `getprop`, made of lines like
//
//	[ro.build.version.sdk]: [34]
func ParseProperties(output string) map[string]string {
	ret := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if m := propertyLine.FindStringSubmatch(strings.TrimSpace(scanner.Text())); m != nil {
			ret[m[1]] = m[2]
		}
	}
	return ret
}

// SpecFromProperties derives the configuration of a device from its system
// properties.
func SpecFromProperties(props map[string]string) (model.DeviceSpec, error) {
	var spec model.DeviceSpec

	sdk, err := strconv.Atoi(props["ro.build.version.sdk"])
	if err != nil {
		return spec, fmt.Errorf("unable to determine the SDK version of the device: %w", err)
	}
	spec.SdkVersion = int32(sdk)
	// Preview platforms report the SDK of the previous release.
	if codename := props["ro.build.version.codename"]; codename != "" && codename != "REL" {
		spec.SdkVersion++
	}

	abilist := props["ro.product.cpu.abilist"]
	if abilist == "" {
		abilist = props["ro.product.cpu.abi"]
	}
	for _, name := range strings.Split(abilist, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		abi, err := model.ParseAbi(name)
		if err != nil {
			// Unknown ABIs can't be targeted by any APK.
			continue
		}
		spec.SupportedAbis = append(spec.SupportedAbis, abi)
	}
	if len(spec.SupportedAbis) == 0 {
		return spec, fmt.Errorf("unable to determine the ABIs of the device")
	}

	for _, key := range []string{"ro.sf.lcd_density", "qemu.sf.lcd_density"} {
		if d, err := strconv.Atoi(props[key]); err == nil && d > 0 {
			spec.ScreenDensity = int32(d)
			break
		}
	}

	if locale := deviceLocale(props, spec.SdkVersion); locale != "" {
		spec.SupportedLocales = []string{locale}
		if _, region, ok := strings.Cut(locale, "-"); ok {
			spec.CountryCode = strings.ToUpper(region)
		}
	}
	return spec, nil
}

func deviceLocale(props map[string]string, sdk int32) string {
	if sdk >= model.AndroidMApiVersion {
		if l := props["persist.sys.locale"]; l != "" {
			return l
		}
	} else if lang := props["persist.sys.language"]; lang != "" {
		if country := props["persist.sys.country"]; country != "" {
			return lang + "-" + country
		}
		return lang
	}
	return props["ro.product.locale"]
}

// ParsePackages parses the output of `pm list packages`.
func ParsePackages(output string) map[string]bool {
	ret := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "package:"); ok && name != "" {
			ret[name] = true
		}
	}
	return ret
}
