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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"android/bundletool/model"
)

const (
	ManifestEntry      = "AndroidManifest.xml"
	ResourceTableEntry = "resources.pb"
	NativeConfigEntry  = "native.pb"
)

// Modification time stamped on every entry so that output is reproducible.
var DefaultTime = time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)

// ConflictingFileError is returned when two different payloads are written
// to the same entry of one APK.
type ConflictingFileError struct {
	Dest string
	Prev string
	Src  string
}

func (e ConflictingFileError) Error() string {
	return fmt.Sprintf("destination %q has two files %q and %q", e.Dest, e.Prev, e.Src)
}

// DigestMismatchError is returned when a payload changed since its digest was
// taken.
type DigestMismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e DigestMismatchError) Error() string {
	return fmt.Sprintf("%s: content changed since it was read (expected sha256 %s, got %s)",
		e.Path, e.Expected, e.Actual)
}

type zipEntry struct {
	name string
	ref  model.PayloadRef
}

func splitEntries(split *model.ModuleSplit) []zipEntry {
	var ret []zipEntry
	if m, ok := split.AndroidManifest.Get(); ok {
		ret = append(ret, zipEntry{ManifestEntry, m.Payload})
	}
	if r, ok := split.ResourceTable.Get(); ok {
		ret = append(ret, zipEntry{ResourceTableEntry, r.Payload})
	}
	if n, ok := split.NativeConfig.Get(); ok {
		ret = append(ret, zipEntry{NativeConfigEntry, n.Payload})
	}
	for _, e := range split.Entries {
		ret = append(ret, zipEntry{e.Path, e.Content})
	}
	return ret
}

// WriteSplit writes split as a proto-format APK named after split.Name() in
// outDir and returns the path of the written file.
func WriteSplit(split *model.ModuleSplit, outDir string) (string, error) {
	out := filepath.Join(outDir, split.Name())
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := writeSplit(split, f); err != nil {
		f.Close()
		os.Remove(out)
		return "", fmt.Errorf("writing %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

func writeSplit(split *model.ModuleSplit, w io.Writer) error {
	zw := zip.NewWriter(w)
	created := make(map[string]model.PayloadRef)
	for _, e := range splitEntries(split) {
		if prev, ok := created[e.name]; ok {
			if prev.Digest == e.ref.Digest {
				continue
			}
			return ConflictingFileError{Dest: e.name, Prev: prev.Path, Src: e.ref.Path}
		}
		created[e.name] = e.ref
		if err := addFile(zw, e); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, e zipEntry) error {
	in, err := os.Open(e.ref.Path)
	if err != nil {
		return err
	}
	defer in.Close()

	fh := &zip.FileHeader{
		Name:     e.name,
		Method:   zip.Deflate,
		Modified: DefaultTime,
	}
	// Native libraries stay uncompressed so that they can be mapped directly
	// from the APK.
	if strings.HasSuffix(e.name, ".so") {
		fh.Method = zip.Store
	}
	fh.SetMode(0644)
	dst, err := zw.CreateHeader(fh)
	if err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, h), in); err != nil {
		return err
	}
	if actual := hex.EncodeToString(h.Sum(nil)); actual != e.ref.Digest {
		return DigestMismatchError{Path: e.ref.Path, Expected: e.ref.Digest, Actual: actual}
	}
	return nil
}
