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
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

const tocEntry = "toc.pb"

// An ApkSet is a zip archive. An entry 'toc.pb' describes its contents.
type ApkSet struct {
	path    string
	reader  *zip.ReadCloser
	entries map[string]*zip.File
	toc     *Toc
}

// Open opens the APK set at path.
func Open(path string) (*ApkSet, error) {
	apkSet := &ApkSet{path: path, entries: make(map[string]*zip.File)}
	var err error
	if apkSet.reader, err = zip.OpenReader(apkSet.path); err != nil {
		return nil, err
	}
	for _, f := range apkSet.reader.File {
		apkSet.entries[f.Name] = f
	}
	return apkSet, nil
}

func (apkSet *ApkSet) Path() string {
	return apkSet.path
}

// Toc decodes the toc.pb entry. The result is cached.
func (apkSet *ApkSet) Toc() (*Toc, error) {
	if apkSet.toc != nil {
		return apkSet.toc, nil
	}
	tocFile, ok := apkSet.entries[tocEntry]
	if !ok {
		return nil, fmt.Errorf("%s: APK set should have %s entry", apkSet.path, tocEntry)
	}
	rc, err := tocFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	bytes, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	toc, err := UnmarshalToc(bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed %s: %w", apkSet.path, tocEntry, err)
	}
	apkSet.toc = toc
	return toc, nil
}

func (apkSet *ApkSet) Close() error {
	return apkSet.reader.Close()
}

// Select returns the entries matching config, or an *IncompatibleDeviceError
// if there are none.
func (apkSet *ApkSet) Select(config TargetConfig) (SelectionResult, error) {
	toc, err := apkSet.Toc()
	if err != nil {
		return SelectionResult{}, err
	}
	sel := SelectApks(toc, config)
	if sel.IsEmpty() {
		return sel, incompatibility(toc, config)
	}
	return sel, nil
}

// Extract writes the selected entries below outDir, keeping their relative
// paths, and returns the written files.
func (apkSet *ApkSet) Extract(ctx context.Context, selected SelectionResult, outDir string) ([]string, error) {
	var ret []string
	for _, entry := range selected.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		apkFile, ok := apkSet.entries[entry]
		if !ok {
			return nil, fmt.Errorf("TOC refers to an entry %s which does not exist", entry)
		}
		if !filepath.IsLocal(entry) {
			return nil, fmt.Errorf("%s: entry %s escapes the output directory", apkSet.path, entry)
		}
		out := filepath.Join(outDir, filepath.FromSlash(entry))
		if err := writeZipEntryToPath(out, apkFile); err != nil {
			return nil, err
		}
		ret = append(ret, out)
	}
	return ret, nil
}

// ExtractApks extracts the APKs of the APK set at path that match config into
// outDir. It fails with an *IncompatibleDeviceError if nothing matches.
func ExtractApks(ctx context.Context, path string, config TargetConfig, outDir string) ([]string, error) {
	apkSet, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer apkSet.Close()
	sel, err := apkSet.Select(config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return apkSet.Extract(ctx, sel, outDir)
}

// ZipEntryCopier copies an entry of one zip file into another under a new
// name, without recompressing it.
type ZipEntryCopier interface {
	CopyFrom(file *zip.File, name string) error
}

// ZipWriter adapts a *zip.Writer to ZipEntryCopier.
type ZipWriter struct {
	*zip.Writer
}

func (w ZipWriter) CopyFrom(file *zip.File, name string) error {
	header := file.FileHeader
	header.Name = name
	dst, err := w.CreateRaw(&header)
	if err != nil {
		return err
	}
	src, err := file.OpenRaw()
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

type renameRule struct {
	rex  *regexp.Regexp
	repl string
}

// outputNames renames the entries of the selected modules:
//
//	splits/base-master.apk, universal.apk, standalones/standalone*.apk -> STEM.apk
//	splits/base-*.apk -> STEM-*.apk
//	splits/MODULE-master.apk -> STEM-MODULE.apk
//	splits/MODULE-*.apk -> STEM-MODULE-*.apk
type outputNames []renameRule

func newOutputNames(modules []string, stem string) outputNames {
	// Longest names first: a module name may prefix another one.
	modules = slices.Clone(modules)
	slices.SortStableFunc(modules, func(a, b string) int { return len(b) - len(a) })

	var rules outputNames
	for _, module := range modules {
		prefix := stem
		if module != baseModuleName {
			prefix = stem + "-" + module
		}
		quoted := regexp.QuoteMeta(module)
		rules = append(rules,
			renameRule{regexp.MustCompile(`^.*/` + quoted + `-master\.apk$`), prefix + `.apk`},
			renameRule{regexp.MustCompile(`^.*/` + quoted + `(-.*\.apk)$`), prefix + `$1`})
	}
	return append(rules,
		renameRule{regexp.MustCompile(`^universal\.apk$`), stem + ".apk"},
		renameRule{regexp.MustCompile(`^standalones/standalone(-.*)?\.apk$`), stem + ".apk"})
}

func (n outputNames) rename(entry string) (string, bool) {
	for _, rule := range n {
		if rule.rex.MatchString(entry) {
			return rule.rex.ReplaceAllString(entry, rule.repl), true
		}
	}
	return "", false
}

// WriteApks writes out selected entries under their output names. The entry
// named STEM.apk goes to outFile, every other one is copied to zipWriter. If
// partition is set, the apkcerts.txt lines of the written entries are
// returned, sorted.
func (apkSet *ApkSet) WriteApks(selected SelectionResult, config TargetConfig,
	outFile io.Writer, zipWriter ZipEntryCopier, partition string) ([]string, error) {

	names := newOutputNames(selected.Modules, config.Stem)
	primary := config.Stem + ".apk"
	sources := make(map[string]string)
	var apkcerts []string
	for _, entry := range selected.Entries {
		file, ok := apkSet.entries[entry]
		if !ok {
			return nil, fmt.Errorf("TOC refers to an entry %s which does not exist", entry)
		}
		outName, ok := names.rename(file.Name)
		if !ok {
			return nil, fmt.Errorf("selected an entry with unexpected name %s", file.Name)
		}
		if prev, dup := sources[outName]; dup {
			return nil, fmt.Errorf("selected entries %s and %s will have the same output name %s",
				prev, file.Name, outName)
		}
		sources[outName] = file.Name

		var err error
		if outName == primary {
			err = writeZipEntry(outFile, file)
		} else {
			err = zipWriter.CopyFrom(file, outName)
		}
		if err != nil {
			return nil, err
		}
		if partition != "" {
			apkcerts = append(apkcerts, fmt.Sprintf(
				`name="%s" certificate="PRESIGNED" private_key="" partition="%s"`, outName, partition))
		}
	}
	slices.Sort(apkcerts)
	return apkcerts, nil
}

// ExtractSingle copies the only selected entry to outFile. It is meant for
// standalone APKs and APEXes.
func (apkSet *ApkSet) ExtractSingle(selected SelectionResult, outFile io.Writer) error {
	if len(selected.Entries) != 1 {
		return fmt.Errorf("too many matching entries for extract-single:\n%v", selected.Entries)
	}
	apk, ok := apkSet.entries[selected.Entries[0]]
	if !ok {
		return fmt.Errorf("couldn't find apk path %s", selected.Entries[0])
	}
	return writeZipEntry(outFile, apk)
}

// ExtractApksArchives extracts every .apks entry of the zip at zipPath into
// outDir and returns their paths in archive order.
func ExtractApksArchives(zipPath, outDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var ret []string
	seen := make(map[string]string)
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".apks") {
			continue
		}
		base := filepath.Base(filepath.FromSlash(f.Name))
		if origin, ok := seen[base]; ok {
			return nil, fmt.Errorf("%s: entries %s and %s have the same file name", zipPath, origin, f.Name)
		}
		seen[base] = f.Name
		out := filepath.Join(outDir, base)
		if err := writeZipEntryToPath(out, f); err != nil {
			return nil, err
		}
		ret = append(ret, out)
	}
	return ret, nil
}

func writeZipEntry(outFile io.Writer, zipEntry *zip.File) error {
	reader, err := zipEntry.Open()
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(outFile, reader)
	return err
}

func writeZipEntryToPath(path string, zipEntry *zip.File) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return writeZipEntry(out, zipEntry)
}
