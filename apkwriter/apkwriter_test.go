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
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"android/bundletool/mergers"
	"android/bundletool/model"
	"android/bundletool/tools"
)

const testDescriptor = `
splits:
  - module: base
    master: true
    manifest: {file: base/AndroidManifest.xml, package: com.example.app}
    resources: base/resources.pb
    entries:
      - {path: dex/classes.dex, file: base/classes.dex}
  - module: base
    master: true
    entries:
      - {path: assets/a.txt, file: base/a.txt}
  - module: base
    targeting: {abis: [arm64-v8a]}
    native: base/native.pb
    entries:
      - {path: lib/arm64-v8a/libfoo.so, file: base/libfoo.so}
  - module: base
    targeting: {abis: [arm64-v8a]}
    entries:
      - {path: lib/arm64-v8a/libbar.so, file: base/libbar.so}
  - module: base
    targeting: {density: xhdpi}
    entries:
      - {path: res/drawable-xhdpi/icon.png, file: base/icon.png}
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
		require.NoError(t, os.WriteFile(path, []byte(content), 0666))
	}
}

func newDescriptor(t *testing.T) string {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"splits.yaml":              testDescriptor,
		"base/AndroidManifest.xml": "manifest",
		"base/resources.pb":        "resources",
		"base/classes.dex":         "dex",
		"base/a.txt":               "a",
		"base/native.pb":           "native",
		"base/libfoo.so":           "foo",
		"base/libbar.so":           "bar",
		"base/icon.png":            "icon",
	})
	return filepath.Join(dir, "splits.yaml")
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	ret := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		ret[f.Name] = string(b)
	}
	return ret
}

func zipOrder(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestLoadDescriptor(t *testing.T) {
	path := newDescriptor(t)
	splits, err := LoadDescriptor(path)
	require.NoError(t, err)
	require.Len(t, splits, 5)

	base := splits[0]
	assert.True(t, base.MasterSplit)
	assert.Equal(t, "base", base.ModuleName)
	m, ok := base.AndroidManifest.Get()
	require.True(t, ok)
	assert.Equal(t, "com.example.app", m.PackageName)
	assert.Equal(t, model.NewPayloadRef(filepath.Join(filepath.Dir(path), "base/AndroidManifest.xml"), []byte("manifest")), m.Payload)
	assert.True(t, base.ResourceTable.IsPresent())
	assert.False(t, base.NativeConfig.IsPresent())

	assert.Equal(t, model.TargetingKey{Abis: model.NewAbiSet(model.Arm64V8a)}, splits[2].Targeting)
	assert.Equal(t, model.TargetingKey{ScreenDensity: model.Xhdpi}, splits[4].Targeting)
	assert.Equal(t, "res/drawable-xhdpi/icon.png", splits[4].Entries[0].Path)
}

func TestLoadDescriptorErrors(t *testing.T) {
	testCases := []struct {
		name       string
		descriptor string
		err        string
	}{
		{
			name:       "bad yaml",
			descriptor: "splits: [",
			err:        "splits.yaml",
		},
		{
			name:       "bad abi",
			descriptor: "splits:\n  - targeting: {abis: [sparc]}\n",
			err:        `bad ABI value: "sparc"`,
		},
		{
			name:       "bad density",
			descriptor: "splits:\n  - targeting: {density: huge}\n",
			err:        `bad screen density value: "huge"`,
		},
		{
			name:       "missing file",
			descriptor: "splits:\n  - resources: nope.pb\n",
			err:        "nope.pb",
		},
		{
			name:       "absolute entry",
			descriptor: "splits:\n  - entries: [{path: /etc/passwd, file: x}]\n",
			err:        `invalid entry path "/etc/passwd"`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{"splits.yaml": tc.descriptor})
			_, err := LoadDescriptor(filepath.Join(dir, "splits.yaml"))
			assert.ErrorContains(t, err, tc.err)
		})
	}
}

func TestWriteSplit(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"m.xml":  "manifest",
		"lib.so": "lib",
		"b.txt":  "b",
	})
	ref := func(name, content string) model.PayloadRef {
		return model.NewPayloadRef(filepath.Join(dir, name), []byte(content))
	}
	split := &model.ModuleSplit{
		Targeting:       model.TargetingKey{Abis: model.NewAbiSet(model.X86_64)},
		AndroidManifest: model.Some(model.AndroidManifest{PackageName: "com.app", Payload: ref("m.xml", "manifest")}),
		ModuleName:      "feature",
		Entries: []model.ModuleEntry{
			{Path: "lib/x86_64/libfoo.so", Content: ref("lib.so", "lib")},
			{Path: "assets/b.txt", Content: ref("b.txt", "b")},
			{Path: "assets/b.txt", Content: ref("b.txt", "b")},
		},
	}

	out, err := WriteSplit(split, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "feature-x86_64.apk"), out)

	want := []string{"AndroidManifest.xml", "lib/x86_64/libfoo.so", "assets/b.txt"}
	if diff := cmp.Diff(want, zipOrder(t, out)); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}

	r, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()
	for _, f := range r.File {
		assert.True(t, f.Modified.Equal(DefaultTime), f.Name)
		if f.Name == "lib/x86_64/libfoo.so" {
			assert.Equal(t, zip.Store, f.Method)
		} else {
			assert.Equal(t, zip.Deflate, f.Method)
		}
	}
}

func TestWriteSplitConflictingEntries(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a": "a", "b": "b"})
	split := &model.ModuleSplit{
		MasterSplit: true,
		Entries: []model.ModuleEntry{
			{Path: "assets/x", Content: model.NewPayloadRef(filepath.Join(dir, "a"), []byte("a"))},
			{Path: "assets/x", Content: model.NewPayloadRef(filepath.Join(dir, "b"), []byte("b"))},
		},
	}
	_, err := WriteSplit(split, dir)
	var conflict ConflictingFileError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ConflictingFileError{Dest: "assets/x", Prev: filepath.Join(dir, "a"), Src: filepath.Join(dir, "b")}, conflict)
	assert.NoFileExists(t, filepath.Join(dir, "base-master.apk"))
}

func TestWriteSplitDetectsModifiedPayload(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a": "a"})
	split := &model.ModuleSplit{
		MasterSplit: true,
		Entries:     []model.ModuleEntry{{Path: "a", Content: model.NewPayloadRef(filepath.Join(dir, "a"), []byte("old"))}},
	}
	_, err := WriteSplit(split, dir)
	var mismatch DigestMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, filepath.Join(dir, "a"), mismatch.Path)
}

func TestMergeSplits(t *testing.T) {
	path := newDescriptor(t)
	outDir := filepath.Join(t.TempDir(), "out")

	written, err := MergeSplits(context.Background(), MergeConfig{DescriptorPath: path, OutDir: outDir})
	require.NoError(t, err)

	// The master split and the untargeted assets split share a targeting.
	want := []string{
		filepath.Join(outDir, "base-master.apk"),
		filepath.Join(outDir, "base-arm64_v8a.apk"),
		filepath.Join(outDir, "base-xhdpi.apk"),
	}
	if diff := cmp.Diff(want, written); diff != "" {
		t.Fatalf("written (-want +got):\n%s", diff)
	}

	master := readZip(t, written[0])
	if diff := cmp.Diff(map[string]string{
		"AndroidManifest.xml": "manifest",
		"resources.pb":        "resources",
		"dex/classes.dex":     "dex",
		"assets/a.txt":        "a",
	}, master); diff != "" {
		t.Errorf("base-master.apk (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"native.pb", "lib/arm64-v8a/libfoo.so", "lib/arm64-v8a/libbar.so"}, zipOrder(t, written[1])); diff != "" {
		t.Errorf("base-arm64_v8a.apk (-want +got):\n%s", diff)
	}
}

func TestMergeSplitsConvertsWithAapt2(t *testing.T) {
	path := newDescriptor(t)
	outDir := t.TempDir()
	runner := tools.NewFakeRunner()
	runner.Handle(func(cmd tools.Command, _ []byte) ([]byte, error) {
		// -o <out> <in>
		out, in := cmd.Args[4], cmd.Args[5]
		content, err := os.ReadFile(in)
		if err != nil {
			return nil, err
		}
		return nil, os.WriteFile(out, content, 0666)
	}, "aapt2", "convert")

	written, err := MergeSplits(context.Background(), MergeConfig{
		DescriptorPath: path,
		OutDir:         outDir,
		Aapt2:          tools.NewAapt2Command(runner, "aapt2"),
	})
	require.NoError(t, err)
	require.Len(t, written, 3)
	require.Len(t, runner.Commands(), 3)
	for _, w := range written {
		assert.Equal(t, outDir, filepath.Dir(w))
		assert.FileExists(t, w)
	}
	assert.Equal(t, "manifest", readZip(t, written[0])["AndroidManifest.xml"])
}

func TestMergeSplitsErrors(t *testing.T) {
	t.Run("conflicting manifests", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"splits.yaml": "splits:\n  - manifest: {file: a.xml}\n  - manifest: {file: b.xml}\n",
			"a.xml":       "a",
			"b.xml":       "b",
		})
		_, err := MergeSplits(context.Background(), MergeConfig{DescriptorPath: filepath.Join(dir, "splits.yaml"), OutDir: dir})
		var inconsistent *mergers.InconsistentTargetingError
		require.ErrorAs(t, err, &inconsistent)
		assert.Equal(t, mergers.ManifestConflict, inconsistent.Kind)
	})

	t.Run("same output name", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, map[string]string{
			"splits.yaml": "splits:\n  - {module: base, master: true, targeting: {min_sdk: 21}}\n  - {module: base}\n",
		})
		_, err := MergeSplits(context.Background(), MergeConfig{DescriptorPath: filepath.Join(dir, "splits.yaml"), OutDir: dir})
		assert.ErrorContains(t, err, "would both be written to base-master.apk")
	})

	t.Run("conversion failure", func(t *testing.T) {
		runner := tools.NewFakeRunner()
		runner.Fail(1, "error: bad proto", "aapt2", "convert")
		_, err := MergeSplits(context.Background(), MergeConfig{
			DescriptorPath: newDescriptor(t),
			OutDir:         t.TempDir(),
			Aapt2:          tools.NewAapt2Command(runner, "aapt2"),
		})
		var toolErr *tools.ToolExecutionError
		require.True(t, errors.As(err, &toolErr))
		assert.Equal(t, 1, toolErr.ExitCode)
		assert.ErrorContains(t, err, "converting base-master.apk")
	})
}
