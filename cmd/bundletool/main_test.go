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
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"android/bundletool/apkset"
	"android/bundletool/device"
	"android/bundletool/model"
	"android/bundletool/tools"
	"android/bundletool/ui/logger"
)

type testEnv struct {
	dir    string
	vars   map[string]string
	runner *tools.FakeRunner
	device *device.FakeDevice
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	return &testEnv{
		dir:    t.TempDir(),
		vars:   map[string]string{},
		runner: tools.NewFakeRunner(),
		device: device.NewFakeDevice("emulator-5554", model.DeviceSpec{
			SdkVersion:    30,
			SupportedAbis: []model.Abi{model.X86_64},
			ScreenDensity: 420,
		}),
	}
}

func (e *testEnv) run(args ...string) int {
	env := environment{
		getenv: func(key string) string { return e.vars[key] },
		newRunner: func(logger.Logger, io.Writer) tools.Runner {
			return e.runner
		},
		newBridge: func(tools.Runner, string, logger.Logger) device.Bridge {
			return &device.FakeBridge{Devices: []*device.FakeDevice{e.device}}
		},
	}
	return run(context.Background(), env, args, &e.stdout, &e.stderr)
}

// executable creates an empty executable file.
func (e *testEnv) executable(t *testing.T, name string) string {
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, os.WriteFile(path, nil, 0755))
	return path
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, os.WriteFile(path, []byte(content), 0666))
	return path
}

// writeApks writes an APK set with a base master split and ABI splits whose
// contents are their own paths.
func (e *testEnv) writeApks(t *testing.T, name, packageName string) string {
	abiSplit := func(abi model.Abi, other model.Abi) *apkset.ApkDescription {
		return &apkset.ApkDescription{
			Path:  "splits/base-" + strings.ReplaceAll(abi.PlatformName(), "-", "_") + ".apk",
			Split: &apkset.SplitApkMetadata{SplitID: "config." + abi.PlatformName()},
			Targeting: &apkset.ApkTargeting{
				Abi: &apkset.AbiTargeting{Value: []model.Abi{abi}, Alternatives: []model.Abi{other}},
			},
		}
	}
	toc := &apkset.Toc{
		PackageName: packageName,
		Variants: []*apkset.Variant{{
			VariantNumber: 0,
			Targeting: &apkset.VariantTargeting{
				SdkVersion: &apkset.SdkVersionTargeting{Value: []apkset.SdkVersion{{Min: model.Some[int32](21)}}},
			},
			ModuleApks: []*apkset.ModuleApks{{
				Metadata: &apkset.ModuleMetadata{Name: "base", DeliveryType: apkset.InstallTime},
				Apks: []*apkset.ApkDescription{
					{
						Path:      "splits/base-master.apk",
						Split:     &apkset.SplitApkMetadata{IsMasterSplit: true},
						Targeting: &apkset.ApkTargeting{},
					},
					abiSplit(model.Arm64V8a, model.X86_64),
					abiSplit(model.X86_64, model.Arm64V8a),
				},
			}},
		}},
	}

	return e.writeToc(t, name, toc)
}

// writeToc writes an APK set for toc whose APKs contain their own paths.
func (e *testEnv) writeToc(t *testing.T, name string, toc *apkset.Toc) string {
	path := filepath.Join(e.dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.Create("toc.pb")
	require.NoError(t, err)
	_, err = w.Write(apkset.MarshalToc(toc))
	require.NoError(t, err)
	for _, v := range toc.Variants {
		for _, m := range v.ModuleApks {
			for _, apk := range m.Apks {
				w, err := zw.Create(apk.Path)
				require.NoError(t, err)
				_, err = w.Write([]byte(apk.Path))
				require.NoError(t, err)
			}
		}
	}
	require.NoError(t, zw.Close())
	return path
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	ret := map[string]string{}
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

func TestRunUnknownCommand(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, 1, e.run("frobnicate"))
	assert.Contains(t, e.stderr.String(), `unknown command "frobnicate"`)
}

func TestRunBadFlag(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, 2, e.run("extract-apks", "--no-such-flag"))
	assert.Contains(t, e.stderr.String(), "unknown flag: --no-such-flag")
	assert.Contains(t, e.stderr.String(), "Usage:")
}

func TestExtractApks(t *testing.T) {
	e := newTestEnv(t)
	apks := e.writeApks(t, "app.apks", "com.app")
	out := filepath.Join(e.dir, "app.apk")
	extra := filepath.Join(e.dir, "extra.zip")
	certs := filepath.Join(e.dir, "apkcerts.txt")

	code := e.run("extract-apks", "-o", out, "--zip", extra, "--sdk-version", "30",
		"--abis", "ARM64_V8A,X86_64", "--screen-densities", "all", "--stem", "app",
		"--apkcerts", certs, "--partition", "system", apks)
	require.Equal(t, 0, code, e.stderr.String())

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "splits/base-master.apk", string(content))
	assert.Equal(t, map[string]string{"app-arm64_v8a.apk": "splits/base-arm64_v8a.apk"}, readZip(t, extra))

	lines, err := os.ReadFile(certs)
	require.NoError(t, err)
	assert.Equal(t,
		`name="app-arm64_v8a.apk" certificate="PRESIGNED" private_key="" partition="system"`+"\n"+
			`name="app.apk" certificate="PRESIGNED" private_key="" partition="system"`+"\n",
		string(lines))
}

func TestExtractApksMultipleModules(t *testing.T) {
	e := newTestEnv(t)
	master := func(path string) *apkset.ApkDescription {
		return &apkset.ApkDescription{
			Path:      path,
			Split:     &apkset.SplitApkMetadata{IsMasterSplit: true},
			Targeting: &apkset.ApkTargeting{},
		}
	}
	apks := e.writeToc(t, "app.apks", &apkset.Toc{
		PackageName: "com.app",
		Variants: []*apkset.Variant{{
			ModuleApks: []*apkset.ModuleApks{
				{
					Metadata: &apkset.ModuleMetadata{Name: "base", DeliveryType: apkset.InstallTime},
					Apks:     []*apkset.ApkDescription{master("splits/base-master.apk")},
				},
				{
					Metadata: &apkset.ModuleMetadata{Name: "feature", DeliveryType: apkset.InstallTime},
					Apks: []*apkset.ApkDescription{
						master("splits/feature-master.apk"),
						{
							Path:  "splits/feature-fr.apk",
							Split: &apkset.SplitApkMetadata{SplitID: "feature.config.fr"},
							Targeting: &apkset.ApkTargeting{
								Language: &apkset.LanguageTargeting{Value: []string{"fr"}},
							},
						},
					},
				},
			},
		}},
	})
	out := filepath.Join(e.dir, "app.apk")
	extra := filepath.Join(e.dir, "extra.zip")

	code := e.run("extract-apks", "-o", out, "--zip", extra, "--sdk-version", "30",
		"--locales", "fr-FR", "--stem", "app", apks)
	require.Equal(t, 0, code, e.stderr.String())

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "splits/base-master.apk", string(content))
	assert.Equal(t, map[string]string{
		"app-feature.apk":    "splits/feature-master.apk",
		"app-feature-fr.apk": "splits/feature-fr.apk",
	}, readZip(t, extra))
}

func TestExtractApksUsage(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		err  string
	}{
		{"no output", []string{"--sdk-version", "30", "--extract-single", "a.apks"}, "-o is required"},
		{"no sdk", []string{"-o", "x", "--extract-single", "a.apks"}, "--sdk-version is required"},
		{"no stem", []string{"-o", "x", "--sdk-version", "30", "--zip", "z", "a.apks"}, "--stem and --zip are required"},
		{"no partition", []string{"-o", "x", "--sdk-version", "30", "--extract-single", "--apkcerts", "c", "a.apks"}, "--partition is required"},
		{"two sets", []string{"-o", "x", "--sdk-version", "30", "--extract-single", "a.apks", "b.apks"}, "expected exactly one APK set, got 2"},
		{"bad abi", []string{"--abis", "ARM64_V8A,SPARC"}, `bad ABI value: "SPARC"`},
		{"density list", []string{"--screen-densities", "HDPI,XHDPI"}, "only one screen density"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)
			assert.Equal(t, 2, e.run(append([]string{"extract-apks"}, tc.args...)...))
			assert.Contains(t, e.stderr.String(), tc.err)
		})
	}
}

func TestScreenDensityValue(t *testing.T) {
	var dpi int32
	v := screenDensityValue{&dpi}
	require.NoError(t, v.Set("XHDPI"))
	assert.Equal(t, int32(320), dpi)
	require.NoError(t, v.Set("420"))
	assert.Equal(t, int32(420), dpi)
	require.NoError(t, v.Set("none"))
	assert.Equal(t, int32(0), dpi)
	assert.Error(t, v.Set("HUGE"))
}

func TestExtractApksIncompatible(t *testing.T) {
	e := newTestEnv(t)
	apks := e.writeApks(t, "app.apks", "com.app")
	code := e.run("extract-apks", "-o", filepath.Join(e.dir, "out.apk"), "--extract-single",
		"--sdk-version", "19", apks)
	assert.Equal(t, 1, code)
	assert.Contains(t, e.stderr.String(), "doesn't support the SDK version")
}

func TestInstallMultiApks(t *testing.T) {
	e := newTestEnv(t)
	e.executable(t, "sdk/platform-tools/adb")
	e.vars["ANDROID_HOME"] = filepath.Join(e.dir, "sdk")
	a := e.writeApks(t, "a.apks", "com.a")
	b := e.writeApks(t, "b.apks", "com.b")

	code := e.run("install-multi-apks", "--apks", a+","+b, "--enable-rollback")
	require.Equal(t, 0, code, e.stderr.String())

	sessions := e.device.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, device.SessionCommitted, sessions[0].State)
	assert.True(t, sessions[0].Options.EnableRollback)
	assert.Equal(t, []string{"com.a", "com.b"}, sessions[0].Packages)
	for _, paths := range sessions[0].Staged {
		var names []string
		for _, p := range paths {
			names = append(names, filepath.Base(p))
		}
		assert.ElementsMatch(t, []string{"base-master.apk", "base-x86_64.apk"}, names)
	}
}

func TestInstallMultiApksReportsWarnings(t *testing.T) {
	e := newTestEnv(t)
	adb := e.executable(t, "adb")
	a := e.writeApks(t, "a.apks", "com.a")
	b := e.writeToc(t, "b.apks", &apkset.Toc{
		PackageName: "com.b",
		Variants: []*apkset.Variant{{
			Targeting: &apkset.VariantTargeting{
				SdkVersion: &apkset.SdkVersionTargeting{Value: []apkset.SdkVersion{{Min: model.Some[int32](33)}}},
			},
			ModuleApks: []*apkset.ModuleApks{{
				Metadata: &apkset.ModuleMetadata{Name: "base", DeliveryType: apkset.InstallTime},
				Apks: []*apkset.ApkDescription{{
					Path:  "splits/base-master.apk",
					Split: &apkset.SplitApkMetadata{IsMasterSplit: true},
				}},
			}},
		}},
	})

	code := e.run("install-multi-apks", "--adb", adb, "--apks", a+","+b)
	require.Equal(t, 0, code, e.stderr.String())
	assert.Contains(t, e.stderr.String(), "Package 'com.b' is not supported by the attached device")
	assert.Contains(t, e.stderr.String(), "Finished with 1 warning(s).")

	sessions := e.device.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, []string{"com.a"}, sessions[0].Packages)

	e = newTestEnv(t)
	adb = e.executable(t, "adb")
	code = e.run("install-multi-apks", "--adb", adb, "--apks", e.writeApks(t, "a.apks", "com.a"))
	require.Equal(t, 0, code, e.stderr.String())
	assert.NotContains(t, e.stderr.String(), "warning(s)")
}

func TestInstallMultiApksDeviceSelection(t *testing.T) {
	t.Run("from environment", func(t *testing.T) {
		e := newTestEnv(t)
		adb := e.executable(t, "adb")
		e.vars["ANDROID_SERIAL"] = "other"
		code := e.run("install-multi-apks", "--adb", adb, "--apks", e.writeApks(t, "a.apks", "com.a"))
		assert.Equal(t, 1, code)
		assert.Contains(t, e.stderr.String(), "device not found")
	})

	t.Run("flag wins over environment", func(t *testing.T) {
		e := newTestEnv(t)
		adb := e.executable(t, "adb")
		e.vars["ANDROID_SERIAL"] = "other"
		code := e.run("install-multi-apks", "--adb", adb, "--device-id", "emulator-5554",
			"--apks", e.writeApks(t, "a.apks", "com.a"))
		assert.Equal(t, 0, code, e.stderr.String())
	})

	t.Run("from config file", func(t *testing.T) {
		e := newTestEnv(t)
		adb := e.executable(t, "adb")
		cfg := e.writeFile(t, "bundletool.yaml", "device-id: emulator-5554\nadb: "+adb+"\nverbose: true\n")
		e.vars["ANDROID_SERIAL"] = "other"
		code := e.run("--config", cfg, "install-multi-apks", "--apks", e.writeApks(t, "a.apks", "com.a"))
		assert.Equal(t, 0, code, e.stderr.String())
		assert.Contains(t, e.stderr.String(), "level=DEBUG")
	})
}

func TestInstallMultiApksErrors(t *testing.T) {
	t.Run("both archive flags", func(t *testing.T) {
		e := newTestEnv(t)
		code := e.run("install-multi-apks", "--apks", "a.apks", "--apks-zip", "b.zip")
		assert.Equal(t, 2, code)
		assert.Contains(t, e.stderr.String(), "Exactly one of --apks or --apks-zip must be set.")
	})

	t.Run("missing archive", func(t *testing.T) {
		e := newTestEnv(t)
		code := e.run("install-multi-apks", "--apks", filepath.Join(e.dir, "missing.apks"))
		assert.Equal(t, 2, code)
		assert.Contains(t, e.stderr.String(), "missing.apks")
		assert.Empty(t, e.device.Sessions())
	})

	t.Run("adb not found", func(t *testing.T) {
		e := newTestEnv(t)
		code := e.run("install-multi-apks", "--apks", e.writeApks(t, "a.apks", "com.a"))
		assert.Equal(t, 1, code)
		assert.Contains(t, e.stderr.String(), "unable to locate adb")
	})

	t.Run("adb not executable", func(t *testing.T) {
		e := newTestEnv(t)
		adb := e.writeFile(t, "adb", "")
		code := e.run("install-multi-apks", "--adb", adb, "--apks", e.writeApks(t, "a.apks", "com.a"))
		assert.NotEqual(t, 0, code)
		assert.Empty(t, e.device.Sessions())
	})
}

func TestMergeSplits(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "base/AndroidManifest.xml", "manifest")
	e.writeFile(t, "base/libfoo.so", "foo")
	descriptor := e.writeFile(t, "splits.yaml", `
splits:
  - module: base
    master: true
    manifest: {file: base/AndroidManifest.xml, package: com.app}
  - module: base
    targeting: {abis: [x86_64]}
    entries:
      - {path: lib/x86_64/libfoo.so, file: base/libfoo.so}
`)
	out := filepath.Join(e.dir, "out")

	code := e.run("merge-splits", "--descriptor", descriptor, "-o", out)
	require.Equal(t, 0, code, e.stderr.String())
	assert.Equal(t,
		filepath.Join(out, "base-master.apk")+"\n"+filepath.Join(out, "base-x86_64.apk")+"\n",
		e.stdout.String())
	assert.Equal(t, map[string]string{"lib/x86_64/libfoo.so": "foo"}, readZip(t, filepath.Join(out, "base-x86_64.apk")))
}

func TestMergeSplitsBinary(t *testing.T) {
	e := newTestEnv(t)
	aapt2 := e.executable(t, "aapt2")
	e.writeFile(t, "m.xml", "manifest")
	descriptor := e.writeFile(t, "splits.yaml", "splits:\n  - {master: true, manifest: {file: m.xml}}\n")
	e.runner.Respond("", aapt2, "convert")

	code := e.run("merge-splits", "--descriptor", descriptor, "-o", filepath.Join(e.dir, "out"), "--binary", "--aapt2", aapt2)
	require.Equal(t, 0, code, e.stderr.String())
	require.Len(t, e.runner.Commands(), 1)
	assert.Equal(t, filepath.Join(e.dir, "out", "base-master.apk"), e.runner.Commands()[0].Args[4])
}

func TestMergeSplitsUsage(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, 2, e.run("merge-splits", "-o", e.dir))
	assert.Contains(t, e.stderr.String(), "--descriptor and -o are required")
}

func TestRunResponseFile(t *testing.T) {
	e := newTestEnv(t)
	adb := e.executable(t, "adb")
	apks := e.writeApks(t, "a.apks", "com.a")
	rsp := e.writeFile(t, "args.rsp", "install-multi-apks --adb '"+adb+"'\n--apks '"+apks+"'\n")

	code := e.run("@"+rsp, "--no-commit")
	require.Equal(t, 0, code, e.stderr.String())
	sessions := e.device.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, device.SessionAbandoned, sessions[0].State)

	assert.Equal(t, 2, e.run("@"+filepath.Join(e.dir, "missing.rsp")))
	assert.Contains(t, e.stderr.String(), "reading response file")
}
