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
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"android/bundletool/apkset"
	"android/bundletool/model"
)

var (
	_ pflag.Value = abiListValue{}
	_ pflag.Value = screenDensityValue{}
)

// abiListValue parses a comma-separated ABI list, most preferred first.
type abiListValue struct {
	abis *[]model.Abi
}

func (v abiListValue) String() string {
	var names []string
	for _, abi := range *v.abis {
		names = append(names, abi.String())
	}
	return strings.Join(names, ",")
}

func (v abiListValue) Set(list string) error {
	*v.abis = nil
	for _, name := range strings.Split(list, ",") {
		abi, err := model.ParseAbi(name)
		if err != nil {
			return err
		}
		*v.abis = append(*v.abis, abi)
	}
	return nil
}

func (v abiListValue) Type() string { return "abis" }

// screenDensityValue parses "all", "none", a density name or a dpi value.
// "all" and "none" leave the density unconstrained.
type screenDensityValue struct {
	dpi *int32
}

func (v screenDensityValue) String() string {
	if *v.dpi == 0 {
		return "none"
	}
	return strconv.Itoa(int(*v.dpi))
}

func (v screenDensityValue) Set(s string) error {
	switch {
	case s == "all" || s == "none":
		*v.dpi = 0
		return nil
	case strings.Contains(s, ","):
		return fmt.Errorf("only one screen density can be targeted, got %q", s)
	}
	if dpi, err := strconv.ParseInt(s, 10, 32); err == nil && dpi > 0 {
		*v.dpi = int32(dpi)
		return nil
	}
	density, err := model.ParseScreenDensity(s)
	if err != nil {
		return err
	}
	*v.dpi = density.Dpi()
	return nil
}

func (v screenDensityValue) Type() string { return "density" }

type extractApksFlags struct {
	config         apkset.TargetConfig
	output         string
	zip            string
	extractSingle  bool
	apkcertsOutput string
	partition      string
}

func (f *extractApksFlags) validate(args []string) error {
	switch {
	case f.output == "":
		return errors.New("-o is required")
	case len(args) != 1:
		return fmt.Errorf("expected exactly one APK set, got %d", len(args))
	case f.config.SdkVersion == 0:
		return errors.New("--sdk-version is required")
	case !f.extractSingle && (f.config.Stem == "" || f.zip == ""):
		return errors.New("--stem and --zip are required unless --extract-single is set")
	case f.apkcertsOutput != "" && f.partition == "":
		return errors.New("--partition is required when --apkcerts is used")
	}
	return nil
}

func newExtractApksCmd(a *app) *cobra.Command {
	f := &extractApksFlags{}
	cmd := &cobra.Command{
		Use:   "extract-apks -o <output-file> --sdk-version <n> {--stem <stem> --zip <zip> | --extract-single} <APK set>",
		Short: "Extract the APKs of an APK set matching a target configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(args); err != nil {
				return usageError{err: err, usage: cmd.UsageString()}
			}
			return extractApks(args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.output, "output", "o", "", "output file for the primary entry")
	flags.StringVar(&f.zip, "zip", "", "output file containing additional extracted entries")
	flags.Int32Var(&f.config.SdkVersion, "sdk-version", 0, "SDK version")
	flags.Var(abiListValue{&f.config.SupportedAbis}, "abis",
		"comma-separated ABIs list of ARMEABI ARMEABI_V7A ARM64_V8A X86 X86_64 MIPS MIPS64 RISCV64")
	flags.Var(screenDensityValue{&f.config.ScreenDensity}, "screen-densities",
		"'all', 'none', a screen density name (LDPI MDPI TVDPI HDPI XHDPI XXHDPI XXXHDPI) or a dpi value")
	flags.StringSliceVar(&f.config.SupportedLocales, "locales", nil, "comma-separated list of device locales")
	flags.BoolVar(&f.config.AllowPrereleased, "allow-prereleased", false, "allow prereleased")
	flags.BoolVar(&f.config.SkipSdkCheck, "skip-sdk-check", false, "skip the SDK version check")
	flags.StringVar(&f.config.Stem, "stem", "", "output entries base name in the output zip file")
	flags.BoolVar(&f.extractSingle, "extract-single", false,
		"extract a single target and output it uncompressed. only available for standalone apks and apexes.")
	flags.StringVar(&f.apkcertsOutput, "apkcerts", "",
		"optional apkcerts.txt output file containing signing info of all outputted apks")
	flags.StringVar(&f.partition, "partition", "", "partition string. required when --apkcerts is used.")
	return cmd
}

func extractApks(path string, f *extractApksFlags) (err error) {
	apkSet, err := apkset.Open(path)
	if err != nil {
		return err
	}
	defer apkSet.Close()

	sel, err := apkSet.Select(f.config)
	if err != nil {
		return err
	}

	outFile, err := os.Create(f.output)
	if err != nil {
		return err
	}
	defer closeInto(outFile, &err)

	if f.extractSingle {
		return apkSet.ExtractSingle(sel, outFile)
	}

	zipFile, err := os.Create(f.zip)
	if err != nil {
		return err
	}
	defer closeInto(zipFile, &err)
	zipWriter := zip.NewWriter(zipFile)
	defer closeInto(zipWriter, &err)

	apkcerts, err := apkSet.WriteApks(sel, f.config, outFile, apkset.ZipWriter{Writer: zipWriter}, f.partition)
	if err != nil {
		return err
	}
	if f.apkcertsOutput != "" {
		var b strings.Builder
		for _, line := range apkcerts {
			b.WriteString(line + "\n")
		}
		return os.WriteFile(f.apkcertsOutput, []byte(b.String()), 0666)
	}
	return nil
}

// closeInto closes c and records its error in err unless err is already set.
func closeInto(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
