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

package mergers

import (
	"android/bundletool/model"
)

// SameTargetingMerger merges splits that have the same targeting.
//
// The result holds one split per distinct targeting, in the order the
// targetings are first seen. Entries of the merged split are the entries of
// its inputs in input order; duplicates are kept.
type SameTargetingMerger struct{}

var _ ModuleSplitMerger = SameTargetingMerger{}

func (SameTargetingMerger) Merge(splits []*model.ModuleSplit) ([]*model.ModuleSplit, error) {
	var order []model.TargetingKey
	byTargeting := make(map[model.TargetingKey][]*model.ModuleSplit)
	for _, split := range splits {
		if _, ok := byTargeting[split.Targeting]; !ok {
			order = append(order, split.Targeting)
		}
		byTargeting[split.Targeting] = append(byTargeting[split.Targeting], split)
	}

	result := make([]*model.ModuleSplit, 0, len(order))
	for _, targeting := range order {
		merged, err := mergeSplits(targeting, byTargeting[targeting])
		if err != nil {
			return nil, err
		}
		result = append(result, merged)
	}
	return result, nil
}

func mergeSplits(targeting model.TargetingKey, splits []*model.ModuleSplit) (*model.ModuleSplit, error) {
	var (
		manifest      model.Optional[model.AndroidManifest]
		resourceTable model.Optional[model.ResourceTable]
		nativeConfig  model.Optional[model.NativeLibraries]
		moduleName    model.Optional[string]
		isMaster      model.Optional[bool]
		entries       []model.ModuleEntry
		err           error
	)

	for _, split := range splits {
		if manifest, err = fold(ManifestConflict, targeting, manifest, split.AndroidManifest); err != nil {
			return nil, err
		}
		if resourceTable, err = fold(ResourceTableConflict, targeting, resourceTable, split.ResourceTable); err != nil {
			return nil, err
		}
		if nativeConfig, err = fold(NativeConfigConflict, targeting, nativeConfig, split.NativeConfig); err != nil {
			return nil, err
		}
		name := model.None[string]()
		if split.ModuleName != "" {
			name = model.Some(split.ModuleName)
		}
		if moduleName, err = fold(ModuleNameConflict, targeting, moduleName, name); err != nil {
			return nil, err
		}
		if isMaster, err = fold(MasterSplitConflict, targeting, isMaster, model.Some(split.MasterSplit)); err != nil {
			return nil, err
		}
		entries = append(entries, split.Entries...)
	}

	return &model.ModuleSplit{
		Targeting:       targeting,
		AndroidManifest: manifest,
		ResourceTable:   resourceTable,
		NativeConfig:    nativeConfig,
		ModuleName:      moduleName.OrElse(""),
		MasterSplit:     isMaster.OrElse(false),
		Entries:         entries,
	}, nil
}

func fold[T comparable](kind ConflictKind, targeting model.TargetingKey, acc, next model.Optional[T]) (model.Optional[T], error) {
	merged, err := model.SameValueOrNone(acc, next)
	if err != nil {
		return merged, &InconsistentTargetingError{Kind: kind, Targeting: targeting}
	}
	return merged, nil
}
