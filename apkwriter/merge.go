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

package apkwriter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"android/bundletool/mergers"
	"android/bundletool/model"
	"android/bundletool/tools"
	"android/bundletool/ui/logger"
)

type MergeConfig struct {
	DescriptorPath string
	OutDir         string
	// Aapt2, when set, converts each written APK to binary format.
	Aapt2  tools.Aapt2Command
	Merger mergers.ModuleSplitMerger
	Logger logger.Logger
}

// MergeSplits loads the splits of a descriptor, merges the ones sharing a
// targeting and writes one APK per merged split. It returns the written paths.
func MergeSplits(ctx context.Context, cfg MergeConfig) ([]string, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard
	}
	merger := cfg.Merger
	if merger == nil {
		merger = mergers.SameTargetingMerger{}
	}

	splits, err := LoadDescriptor(cfg.DescriptorPath)
	if err != nil {
		return nil, err
	}
	merged, err := merger.Merge(splits)
	if err != nil {
		return nil, err
	}
	log.Verbosef("Merged %d splits into %d", len(splits), len(merged))

	if err := checkNames(merged); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutDir, 0777); err != nil {
		return nil, err
	}

	protoDir := cfg.OutDir
	if cfg.Aapt2 != nil {
		if protoDir, err = os.MkdirTemp("", "bundletool-merge-"); err != nil {
			return nil, err
		}
		defer os.RemoveAll(protoDir)
	}

	var written []string
	for _, split := range merged {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, err := WriteSplit(split, protoDir)
		if err != nil {
			return nil, err
		}
		if cfg.Aapt2 != nil {
			out := filepath.Join(cfg.OutDir, split.Name())
			if err := cfg.Aapt2.ConvertApkProtoToBinary(ctx, path, out); err != nil {
				return nil, fmt.Errorf("converting %s: %w", split.Name(), err)
			}
			path = out
		}
		log.Verbosef("Wrote %s", path)
		written = append(written, path)
	}
	return written, nil
}

func checkNames(splits []*model.ModuleSplit) error {
	seen := make(map[string]*model.ModuleSplit)
	for _, s := range splits {
		if prev, ok := seen[s.Name()]; ok {
			return fmt.Errorf("splits %s and %s would both be written to %s", prev, s, s.Name())
		}
		seen[s.Name()] = s
	}
	return nil
}
