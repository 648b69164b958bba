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

package response

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "spaces", in: "  a b\n\tc  ", want: []string{"a", "b", "c"}},
		{name: "single quotes", in: `'a b' 'c\d'`, want: []string{"a b", `c\d`}},
		{name: "double quotes", in: `"a b" "c\"d" "e\f" "g\\h"`, want: []string{"a b", `c"d`, `e\f`, `g\h`}},
		{name: "escaped space", in: `a\ b c`, want: []string{"a b", "c"}},
		{name: "quote inside word", in: `--apks='x y.apks'`, want: []string{"--apks=x y.apks"}},
		{name: "empty quotes dropped", in: `a '' b`, want: []string{"a", "b"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Split(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Split(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	rsp := filepath.Join(dir, "args.rsp")
	if err := os.WriteFile(rsp, []byte("--apks a.apks,b.apks\n@nested\n"), 0666); err != nil {
		t.Fatal(err)
	}

	got, err := Expand([]string{"install-multi-apks", "@" + rsp, "--update-only", "@"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"install-multi-apks", "--apks", "a.apks,b.apks", "@nested", "--update-only", "@"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %q, want %q", got, want)
	}

	if _, err := Expand([]string{"@" + filepath.Join(dir, "missing.rsp")}); err == nil {
		t.Error("expected an error for a missing response file")
	}
}
