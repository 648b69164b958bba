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

	"google.golang.org/protobuf/encoding/protowire"

	"android/bundletool/model"
)

// The toc.pb messages are decoded field by field with protowire. Field
// numbers follow bundletool's commands.proto and targeting.proto.

type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func parseFields(b []byte) ([]field, error) {
	var ret []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		ret = append(ret, f)
	}
	return ret, nil
}

// visit calls fn for every field of the message in b. Fields of an
// unexpected wire type are skipped, as are unknown fields.
func visit(b []byte, fn func(f field) error) error {
	fields, err := parseFields(b)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) isBytes() bool  { return f.typ == protowire.BytesType }
func (f field) isVarint() bool { return f.typ == protowire.VarintType }

// UnmarshalToc decodes a serialized BuildApksResult message.
func UnmarshalToc(b []byte) (*Toc, error) {
	toc := &Toc{}
	err := visit(b, func(f field) error {
		switch {
		case f.num == 1 && f.isBytes():
			v, err := unmarshalVariant(f.bytes)
			if err != nil {
				return fmt.Errorf("variant: %w", err)
			}
			toc.Variants = append(toc.Variants, v)
		case f.num == 2 && f.isBytes():
			return visit(f.bytes, func(f field) error {
				if f.num == 2 && f.isBytes() {
					toc.BundletoolVersion = string(f.bytes)
				}
				return nil
			})
		case f.num == 4 && f.isBytes():
			toc.PackageName = string(f.bytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toc, nil
}

func unmarshalVariant(b []byte) (*Variant, error) {
	v := &Variant{}
	err := visit(b, func(f field) error {
		var err error
		switch {
		case f.num == 1 && f.isBytes():
			v.Targeting, err = unmarshalVariantTargeting(f.bytes)
		case f.num == 2 && f.isBytes():
			var m *ModuleApks
			if m, err = unmarshalModuleApks(f.bytes); err == nil {
				v.ModuleApks = append(v.ModuleApks, m)
			}
		case f.num == 3 && f.isVarint():
			v.VariantNumber = uint32(f.varint)
		}
		return err
	})
	return v, err
}

func unmarshalModuleApks(b []byte) (*ModuleApks, error) {
	m := &ModuleApks{}
	err := visit(b, func(f field) error {
		var err error
		switch {
		case f.num == 1 && f.isBytes():
			m.Metadata, err = unmarshalModuleMetadata(f.bytes)
		case f.num == 2 && f.isBytes():
			var d *ApkDescription
			if d, err = unmarshalApkDescription(f.bytes); err == nil {
				m.Apks = append(m.Apks, d)
			}
		}
		return err
	})
	return m, err
}

func unmarshalModuleMetadata(b []byte) (*ModuleMetadata, error) {
	m := &ModuleMetadata{}
	err := visit(b, func(f field) error {
		var err error
		switch {
		case f.num == 1 && f.isBytes():
			m.Name = string(f.bytes)
		case f.num == 3 && f.isVarint():
			m.IsInstant = f.varint != 0
		case f.num == 4 && f.isBytes():
			m.Dependencies = append(m.Dependencies, string(f.bytes))
		case f.num == 5 && f.isBytes():
			m.Targeting, err = unmarshalModuleTargeting(f.bytes)
		case f.num == 6 && f.isVarint():
			m.DeliveryType = DeliveryType(f.varint)
		}
		return err
	})
	return m, err
}

func unmarshalApkDescription(b []byte) (*ApkDescription, error) {
	d := &ApkDescription{}
	err := visit(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		var err error
		switch f.num {
		case 1:
			d.Targeting, err = unmarshalApkTargeting(f.bytes)
		case 2:
			d.Path = string(f.bytes)
		case 3:
			d.Split = &SplitApkMetadata{}
			err = visit(f.bytes, func(f field) error {
				switch {
				case f.num == 1 && f.isBytes():
					d.Split.SplitID = string(f.bytes)
				case f.num == 2 && f.isVarint():
					d.Split.IsMasterSplit = f.varint != 0
				}
				return nil
			})
		case 4:
			d.Standalone = &StandaloneApkMetadata{}
			err = visit(f.bytes, func(f field) error {
				if f.num == 1 && f.isBytes() {
					d.Standalone.FusedModuleNames = append(d.Standalone.FusedModuleNames, string(f.bytes))
				}
				return nil
			})
		case 5:
			d.Instant = true
		case 6:
			d.System = true
		case 7:
			d.AssetSlice = true
		case 8:
			d.Apex = true
		}
		return err
	})
	return d, err
}

func unmarshalVariantTargeting(b []byte) (*VariantTargeting, error) {
	t := &VariantTargeting{}
	err := visit(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		var err error
		switch f.num {
		case 1:
			t.SdkVersion, err = unmarshalSdkTargeting(f.bytes)
		case 2:
			t.Abi, err = unmarshalAbiTargeting(f.bytes)
		case 3:
			t.ScreenDensity, err = unmarshalDensityTargeting(f.bytes)
		case 4:
			t.MultiAbi, err = unmarshalMultiAbiTargeting(f.bytes)
		case 5:
			t.TextureCompressionFormat, err = unmarshalTcfTargeting(f.bytes)
		}
		return err
	})
	return t, err
}

func unmarshalApkTargeting(b []byte) (*ApkTargeting, error) {
	t := &ApkTargeting{}
	err := visit(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		var err error
		switch f.num {
		case 1:
			t.Abi, err = unmarshalAbiTargeting(f.bytes)
		case 3:
			t.Language, err = unmarshalLanguageTargeting(f.bytes)
		case 4:
			t.ScreenDensity, err = unmarshalDensityTargeting(f.bytes)
		case 5:
			t.SdkVersion, err = unmarshalSdkTargeting(f.bytes)
		case 6:
			t.TextureCompressionFormat, err = unmarshalTcfTargeting(f.bytes)
		case 7:
			t.MultiAbi, err = unmarshalMultiAbiTargeting(f.bytes)
		}
		return err
	})
	return t, err
}

func unmarshalModuleTargeting(b []byte) (*ModuleTargeting, error) {
	t := &ModuleTargeting{}
	err := visit(b, func(f field) error {
		if !f.isBytes() {
			return nil
		}
		var err error
		switch f.num {
		case 1:
			t.SdkVersion, err = unmarshalSdkTargeting(f.bytes)
		case 3:
			t.UserCountries = &UserCountriesTargeting{}
			err = visit(f.bytes, func(f field) error {
				switch {
				case f.num == 1 && f.isBytes():
					t.UserCountries.CountryCodes = append(t.UserCountries.CountryCodes, string(f.bytes))
				case f.num == 2 && f.isVarint():
					t.UserCountries.Exclude = f.varint != 0
				}
				return nil
			})
		}
		return err
	})
	return t, err
}

// unmarshalValues decodes the value (1) and alternatives (2) fields shared by
// every targeting message.
func unmarshalValues[T any](b []byte, decode func(field) (T, error)) (value, alternatives []T, err error) {
	err = visit(b, func(f field) error {
		if f.num != 1 && f.num != 2 {
			return nil
		}
		v, err := decode(f)
		if err != nil {
			return err
		}
		if f.num == 1 {
			value = append(value, v)
		} else {
			alternatives = append(alternatives, v)
		}
		return nil
	})
	return value, alternatives, err
}

// enumMessage decodes a message whose only field of interest is the enum in
// field 1, such as Abi or TextureCompressionFormat.
func enumMessage(f field) (int32, error) {
	var alias int32
	err := visit(f.bytes, func(f field) error {
		if f.num == 1 && f.isVarint() {
			alias = int32(f.varint)
		}
		return nil
	})
	return alias, err
}

func decodeAbi(f field) (model.Abi, error) {
	alias, err := enumMessage(f)
	return model.Abi(alias), err
}

func unmarshalAbiTargeting(b []byte) (*AbiTargeting, error) {
	value, alternatives, err := unmarshalValues(b, decodeAbi)
	return &AbiTargeting{Value: value, Alternatives: alternatives}, err
}

func unmarshalMultiAbiTargeting(b []byte) (*MultiAbiTargeting, error) {
	value, alternatives, err := unmarshalValues(b, func(f field) ([]model.Abi, error) {
		var abis []model.Abi
		err := visit(f.bytes, func(f field) error {
			if f.num != 1 || !f.isBytes() {
				return nil
			}
			abi, err := decodeAbi(f)
			abis = append(abis, abi)
			return err
		})
		return abis, err
	})
	return &MultiAbiTargeting{Value: value, Alternatives: alternatives}, err
}

func unmarshalDensityTargeting(b []byte) (*ScreenDensityTargeting, error) {
	value, alternatives, err := unmarshalValues(b, func(f field) (ScreenDensity, error) {
		var d ScreenDensity
		err := visit(f.bytes, func(f field) error {
			switch {
			case f.num == 1 && f.isVarint():
				d.Alias = model.ScreenDensity(f.varint)
			case f.num == 2 && f.isVarint():
				d.Dpi = int32(f.varint)
			}
			return nil
		})
		return d, err
	})
	return &ScreenDensityTargeting{Value: value, Alternatives: alternatives}, err
}

func unmarshalSdkTargeting(b []byte) (*SdkVersionTargeting, error) {
	value, alternatives, err := unmarshalValues(b, func(f field) (SdkVersion, error) {
		var v SdkVersion
		err := visit(f.bytes, func(f field) error {
			if f.num != 1 || !f.isBytes() {
				return nil
			}
			// google.protobuf.Int32Value
			var minSdk int32
			err := visit(f.bytes, func(f field) error {
				if f.num == 1 && f.isVarint() {
					minSdk = int32(f.varint)
				}
				return nil
			})
			v.Min = model.Some(minSdk)
			return err
		})
		return v, err
	})
	return &SdkVersionTargeting{Value: value, Alternatives: alternatives}, err
}

func unmarshalLanguageTargeting(b []byte) (*LanguageTargeting, error) {
	value, alternatives, err := unmarshalValues(b, func(f field) (string, error) {
		return string(f.bytes), nil
	})
	return &LanguageTargeting{Value: value, Alternatives: alternatives}, err
}

func unmarshalTcfTargeting(b []byte) (*TextureCompressionFormatTargeting, error) {
	value, alternatives, err := unmarshalValues(b, func(f field) (model.TextureCompressionFormat, error) {
		alias, err := enumMessage(f)
		return model.TextureCompressionFormat(alias), err
	})
	return &TextureCompressionFormatTargeting{Value: value, Alternatives: alternatives}, err
}

// MarshalToc encodes toc as a BuildApksResult message. Zero values are
// omitted as in proto3.
func MarshalToc(toc *Toc) []byte {
	var b []byte
	for _, v := range toc.Variants {
		b = appendMessage(b, 1, marshalVariant(v))
	}
	if toc.BundletoolVersion != "" {
		b = appendMessage(b, 2, appendString(nil, 2, toc.BundletoolVersion))
	}
	b = appendString(b, 4, toc.PackageName)
	return b
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if v {
		return appendVarint(b, num, 1)
	}
	return b
}

func marshalVariant(v *Variant) []byte {
	var b []byte
	if v.Targeting != nil {
		b = appendMessage(b, 1, marshalVariantTargeting(v.Targeting))
	}
	for _, m := range v.ModuleApks {
		b = appendMessage(b, 2, marshalModuleApks(m))
	}
	return appendVarint(b, 3, uint64(v.VariantNumber))
}

func marshalModuleApks(m *ModuleApks) []byte {
	var b []byte
	if md := m.Metadata; md != nil {
		var mb []byte
		mb = appendString(mb, 1, md.Name)
		mb = appendBool(mb, 3, md.IsInstant)
		for _, dep := range md.Dependencies {
			mb = appendString(mb, 4, dep)
		}
		if md.Targeting != nil {
			mb = appendMessage(mb, 5, marshalModuleTargeting(md.Targeting))
		}
		mb = appendVarint(mb, 6, uint64(md.DeliveryType))
		b = appendMessage(b, 1, mb)
	}
	for _, d := range m.Apks {
		b = appendMessage(b, 2, marshalApkDescription(d))
	}
	return b
}

func marshalApkDescription(d *ApkDescription) []byte {
	var b []byte
	if d.Targeting != nil {
		b = appendMessage(b, 1, marshalApkTargeting(d.Targeting))
	}
	b = appendString(b, 2, d.Path)
	if d.Split != nil {
		var sb []byte
		sb = appendString(sb, 1, d.Split.SplitID)
		sb = appendBool(sb, 2, d.Split.IsMasterSplit)
		b = appendMessage(b, 3, sb)
	}
	if d.Standalone != nil {
		var sb []byte
		for _, name := range d.Standalone.FusedModuleNames {
			sb = appendString(sb, 1, name)
		}
		b = appendMessage(b, 4, sb)
	}
	for _, present := range []struct {
		num protowire.Number
		set bool
	}{{5, d.Instant}, {6, d.System}, {7, d.AssetSlice}, {8, d.Apex}} {
		if present.set {
			b = appendMessage(b, present.num, nil)
		}
	}
	return b
}

func marshalVariantTargeting(t *VariantTargeting) []byte {
	var b []byte
	if t.SdkVersion != nil {
		b = appendMessage(b, 1, marshalSdkTargeting(t.SdkVersion))
	}
	if t.Abi != nil {
		b = appendMessage(b, 2, marshalAbiTargeting(t.Abi))
	}
	if t.ScreenDensity != nil {
		b = appendMessage(b, 3, marshalDensityTargeting(t.ScreenDensity))
	}
	if t.MultiAbi != nil {
		b = appendMessage(b, 4, marshalMultiAbiTargeting(t.MultiAbi))
	}
	if t.TextureCompressionFormat != nil {
		b = appendMessage(b, 5, marshalTcfTargeting(t.TextureCompressionFormat))
	}
	return b
}

func marshalApkTargeting(t *ApkTargeting) []byte {
	var b []byte
	if t.Abi != nil {
		b = appendMessage(b, 1, marshalAbiTargeting(t.Abi))
	}
	if t.Language != nil {
		var lb []byte
		for _, l := range t.Language.Value {
			lb = appendMessage(lb, 1, []byte(l))
		}
		for _, l := range t.Language.Alternatives {
			lb = appendMessage(lb, 2, []byte(l))
		}
		b = appendMessage(b, 3, lb)
	}
	if t.ScreenDensity != nil {
		b = appendMessage(b, 4, marshalDensityTargeting(t.ScreenDensity))
	}
	if t.SdkVersion != nil {
		b = appendMessage(b, 5, marshalSdkTargeting(t.SdkVersion))
	}
	if t.TextureCompressionFormat != nil {
		b = appendMessage(b, 6, marshalTcfTargeting(t.TextureCompressionFormat))
	}
	if t.MultiAbi != nil {
		b = appendMessage(b, 7, marshalMultiAbiTargeting(t.MultiAbi))
	}
	return b
}

func marshalModuleTargeting(t *ModuleTargeting) []byte {
	var b []byte
	if t.SdkVersion != nil {
		b = appendMessage(b, 1, marshalSdkTargeting(t.SdkVersion))
	}
	if t.UserCountries != nil {
		var cb []byte
		for _, c := range t.UserCountries.CountryCodes {
			cb = appendString(cb, 1, c)
		}
		cb = appendBool(cb, 2, t.UserCountries.Exclude)
		b = appendMessage(b, 3, cb)
	}
	return b
}

func marshalValues[T any](value, alternatives []T, encode func(T) []byte) []byte {
	var b []byte
	for _, v := range value {
		b = appendMessage(b, 1, encode(v))
	}
	for _, v := range alternatives {
		b = appendMessage(b, 2, encode(v))
	}
	return b
}

func marshalAbi(a model.Abi) []byte {
	return appendVarint(nil, 1, uint64(a))
}

func marshalAbiTargeting(t *AbiTargeting) []byte {
	return marshalValues(t.Value, t.Alternatives, marshalAbi)
}

func marshalMultiAbiTargeting(t *MultiAbiTargeting) []byte {
	return marshalValues(t.Value, t.Alternatives, func(abis []model.Abi) []byte {
		var b []byte
		for _, a := range abis {
			b = appendMessage(b, 1, marshalAbi(a))
		}
		return b
	})
}

func marshalDensityTargeting(t *ScreenDensityTargeting) []byte {
	return marshalValues(t.Value, t.Alternatives, func(d ScreenDensity) []byte {
		if d.Alias != model.DensityUnspecified {
			return appendVarint(nil, 1, uint64(d.Alias))
		}
		return appendVarint(nil, 2, uint64(d.Dpi))
	})
}

func marshalSdkTargeting(t *SdkVersionTargeting) []byte {
	return marshalValues(t.Value, t.Alternatives, func(v SdkVersion) []byte {
		minSdk, ok := v.Min.Get()
		if !ok {
			return nil
		}
		return appendMessage(nil, 1, appendVarint(nil, 1, uint64(minSdk)))
	})
}

func marshalTcfTargeting(t *TextureCompressionFormatTargeting) []byte {
	return marshalValues(t.Value, t.Alternatives, func(f model.TextureCompressionFormat) []byte {
		return appendVarint(nil, 1, uint64(f))
	})
}
