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

// Package mergers folds module splits that are delivered together into a
// single split.
package mergers

import (
	"fmt"

	"android/bundletool/model"
)

// ModuleSplitMerger merges a set of splits into a (usually smaller) set of
// splits.
type ModuleSplitMerger interface {
	Merge(splits []*model.ModuleSplit) ([]*model.ModuleSplit, error)
}

type ConflictKind int

const (
	ManifestConflict ConflictKind = iota
	ResourceTableConflict
	NativeConfigConflict
	ModuleNameConflict
	MasterSplitConflict
)

func (k ConflictKind) String() string {
	switch k {
	case ManifestConflict:
		return "manifest"
	case ResourceTableConflict:
		return "resource table"
	case NativeConfigConflict:
		return "native config"
	case ModuleNameConflict:
		return "module name"
	case MasterSplitConflict:
		return "master split flag"
	}
	return fmt.Sprintf("ConflictKind(%d)", int(k))
}

// InconsistentTargetingError is returned when splits sharing a targeting
// disagree on a field that the merged split can only hold once.
type InconsistentTargetingError struct {
	Kind      ConflictKind
	Targeting model.TargetingKey
}

func (e *InconsistentTargetingError) Error() string {
	switch e.Kind {
	case ResourceTableConflict:
		return fmt.Sprintf("unsupported case: encountered two distinct resource tables while merging splits targeting %s", e.Targeting)
	case MasterSplitConflict:
		return fmt.Sprintf("encountered conflicting isMasterSplit flag values while merging splits targeting %s", e.Targeting)
	}
	return fmt.Sprintf("encountered two distinct %ss while merging splits targeting %s", e.Kind, e.Targeting)
}
