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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"android/bundletool/apkwriter"
	"android/bundletool/tools"
)

func newMergeSplitsCmd(a *app) *cobra.Command {
	var (
		descriptor string
		outDir     string
		binary     bool
	)
	cmd := &cobra.Command{
		Use:   "merge-splits --descriptor <splits.yaml> -o <dir> [--binary]",
		Short: "Merge module splits sharing a targeting and write them as APKs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bindFlags(cmd, keyAapt2)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if descriptor == "" || outDir == "" {
				return usageError{err: fmt.Errorf("--descriptor and -o are required"), usage: cmd.UsageString()}
			}
			cfg := apkwriter.MergeConfig{
				DescriptorPath: descriptor,
				OutDir:         outDir,
				Logger:         a.log,
			}
			if binary {
				path, err := a.toolPath(keyAapt2, tools.LocateAapt2)
				if err != nil {
					return err
				}
				cfg.Aapt2 = tools.NewAapt2Command(a.runner(cmd), path)
			}
			written, err := apkwriter.MergeSplits(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&descriptor, "descriptor", "", "YAML file describing the splits to merge")
	flags.StringVarP(&outDir, "output", "o", "", "directory the merged APKs are written to")
	flags.BoolVar(&binary, "binary", false, "convert the APKs to binary format with aapt2")
	flags.String(keyAapt2, "", "path to the aapt2 binary (default: located from $ANDROID_HOME or $PATH)")
	return cmd
}
