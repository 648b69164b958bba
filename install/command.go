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

package install

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"android/bundletool/apkset"
	"android/bundletool/device"
	"android/bundletool/model"
	"android/bundletool/tools"
	"android/bundletool/ui/logger"
)

// Config holds the inputs of InstallMultiApksCommand.
type Config struct {
	// Exactly one of ApksArchivePaths and ApksArchiveZipPath must be set. An
	// empty ApksArchivePaths counts as not set.
	ApksArchivePaths   []string
	ApksArchiveZipPath string

	// DeviceID selects the device. If empty, exactly one device must be
	// connected.
	DeviceID string
	// AdbPath is checked to be executable when set.
	AdbPath string

	EnableRollback bool
	UpdateOnly     bool
	NoCommit       bool

	// Aapt2 returns the aapt2 command used to read package names missing
	// from APK set tocs. It is called at most once.
	Aapt2  func() (tools.Aapt2Command, error)
	Bridge device.Bridge
	Logger logger.Logger
	// TempRoot is where temporary files are created, the system default if
	// empty.
	TempRoot string
}

// InstallMultiApksCommand atomically installs the APKs and APEXes of several
// APK sets on a device.
type InstallMultiApksCommand struct {
	cfg Config
	log logger.Logger
}

// NewInstallMultiApksCommand validates cfg and returns the command.
func NewInstallMultiApksCommand(cfg Config) (*InstallMultiApksCommand, error) {
	if (len(cfg.ApksArchivePaths) > 0) == (cfg.ApksArchiveZipPath != "") {
		return nil, invalidInput("Exactly one of --apks or --apks-zip must be set.")
	}
	if cfg.Bridge == nil {
		return nil, errors.New("no device bridge configured")
	}
	if cfg.Aapt2 == nil {
		cfg.Aapt2 = func() (tools.Aapt2Command, error) {
			return nil, errors.New("aapt2 is not available")
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard
	}
	return &InstallMultiApksCommand{cfg: cfg, log: log}, nil
}

func (c *InstallMultiApksCommand) validateInput() error {
	if zip := c.cfg.ApksArchiveZipPath; zip != "" {
		if err := CheckFileExistsAndReadable(zip); err != nil {
			return err
		}
		if err := CheckFileHasExtension("ZIP file", zip, ".zip"); err != nil {
			return err
		}
	}
	for _, apks := range c.cfg.ApksArchivePaths {
		if err := CheckFileExistsAndReadable(apks); err != nil {
			return err
		}
		if err := CheckFileHasExtension("APKS file", apks, ".apks"); err != nil {
			return err
		}
	}
	if c.cfg.AdbPath != "" {
		return CheckFileExistsAndExecutable(c.cfg.AdbPath)
	}
	return nil
}

// aapt2UnavailableError makes a failure to find aapt2 fatal, unlike other
// failures to read a package name.
type aapt2UnavailableError struct {
	err error
}

func (e *aapt2UnavailableError) Error() string {
	return fmt.Sprintf("unable to run aapt2: %v", e.err)
}

func (e *aapt2UnavailableError) Unwrap() error {
	return e.err
}

// Execute runs the installation. Nothing is installed if any package fails.
func (c *InstallMultiApksCommand) Execute(ctx context.Context) error {
	if err := c.validateInput(); err != nil {
		return err
	}

	tmp, err := NewTempDir(c.cfg.TempRoot, "bundletool-install-")
	if err != nil {
		return err
	}
	defer tmp.Close()

	dev, err := c.cfg.Bridge.Device(ctx, c.cfg.DeviceID)
	if err != nil {
		return err
	}
	spec, err := dev.Spec(ctx)
	if err != nil {
		return err
	}
	c.log.Verbosef("Device %s: %s", dev.Serial(), spec)
	if spec.SdkVersion > 0 && spec.SdkVersion < model.AndroidLApiVersion {
		return fmt.Errorf("multi-package installs require a device running Android L (API %d) or above, device %s runs API %d",
			model.AndroidLApiVersion, dev.Serial(), spec.SdkVersion)
	}
	installer := NewInstaller(dev, Options{
		EnableRollback: c.cfg.EnableRollback,
		UpdateOnly:     c.cfg.UpdateOnly,
		NoCommit:       c.cfg.NoCommit,
	}, c.log)

	aapt2 := sync.OnceValues(func() (tools.Aapt2Command, error) {
		cmd, err := c.cfg.Aapt2()
		if err != nil {
			return nil, &aapt2UnavailableError{err}
		}
		return cmd, nil
	})

	archives, err := c.archivePaths(tmp)
	if err != nil {
		return err
	}
	config := apkset.TargetConfig{DeviceSpec: spec}

	named, err := c.packageNames(ctx, archives, tmp, aapt2)
	if err != nil {
		return err
	}

	var existing map[string]bool
	if c.cfg.UpdateOnly {
		if existing, err = installer.InstalledPackages(ctx); err != nil {
			return err
		}
	}

	batch := NewBatch()
	for _, archive := range named {
		if c.cfg.UpdateOnly && !existing[archive.PackageName] {
			c.log.Printf("Package '%s' not present on device, skipping due to --update-only.", archive.PackageName)
			continue
		}
		apks, err := c.extract(ctx, archive, config, tmp, len(archives) == 1)
		if err != nil {
			return err
		}
		for _, apk := range apks {
			batch.Add(apk)
		}
	}
	return installer.Install(ctx, batch)
}

// archivePaths returns the APK sets to install, extracting them from the
// zip file first if needed.
func (c *InstallMultiApksCommand) archivePaths(tmp *TempDir) ([]string, error) {
	if c.cfg.ApksArchiveZipPath == "" {
		return c.cfg.ApksArchivePaths, nil
	}
	dir, err := tmp.Subdir("extracted-")
	if err != nil {
		return nil, err
	}
	return apkset.ExtractApksArchives(c.cfg.ApksArchiveZipPath, dir)
}

// packageNames reads the package name of every archive, concurrently.
// Archives whose name can't be determined are skipped with a warning.
func (c *InstallMultiApksCommand) packageNames(ctx context.Context, archives []string, tmp *TempDir,
	aapt2 apkset.Aapt2Supplier) ([]InstallableApk, error) {

	results := make([]*InstallableApk, len(archives))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range archives {
		g.Go(func() error {
			name, err := c.packageName(ctx, path, tmp, aapt2, len(archives) == 1)
			if err != nil {
				return err
			}
			if name != "" {
				results[i] = &InstallableApk{Path: path, PackageName: name}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ret []InstallableApk
	for _, r := range results {
		if r != nil {
			ret = append(ret, *r)
		}
	}
	return ret, nil
}

// packageName reads the package name of one archive. A failure skips the
// archive unless it is the only one, or unless aapt2 can't be run at all.
func (c *InstallMultiApksCommand) packageName(ctx context.Context, path string, tmp *TempDir,
	aapt2 apkset.Aapt2Supplier, only bool) (string, error) {

	apkSet, err := apkset.Open(path)
	if err != nil {
		return "", err
	}
	defer apkSet.Close()
	toc, err := apkSet.Toc()
	if err != nil {
		return "", err
	}
	if toc.PackageName != "" {
		return toc.PackageName, nil
	}

	dir, err := tmp.Subdir("badging-")
	if err != nil {
		return "", err
	}
	name, err := apkSet.PackageName(ctx, dir, aapt2)
	var unavailable *aapt2UnavailableError
	switch {
	case errors.As(err, &unavailable):
		return "", err
	case err != nil && only:
		return "", fmt.Errorf("unable to determine package name of %s: %w", path, err)
	case err != nil:
		c.log.Warningf("Unable to determine package name of %s: %v. Skipping.", path, err)
		return "", nil
	}
	return name, nil
}

// extract extracts the APKs of archive matching the device. An incompatible
// archive is skipped unless it is the only one.
func (c *InstallMultiApksCommand) extract(ctx context.Context, archive InstallableApk,
	config apkset.TargetConfig, tmp *TempDir, only bool) ([]InstallableApk, error) {

	c.log.Printf("Extracting package '%s'", archive.PackageName)
	out, err := tmp.Subdir(archive.PackageName + "-")
	if err != nil {
		return nil, fmt.Errorf("temp directory to extract files for package '%s' can't be created: %w",
			archive.PackageName, err)
	}
	paths, err := apkset.ExtractApks(ctx, archive.Path, config, out)
	var incompatible *apkset.IncompatibleDeviceError
	if errors.As(err, &incompatible) && !only {
		c.log.Warningf("Package '%s' is not supported by the attached device (SDK version %d). Skipping.",
			archive.PackageName, config.SdkVersion)
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var ret []InstallableApk
	for _, p := range paths {
		ret = append(ret, InstallableApk{Path: p, PackageName: archive.PackageName})
	}
	return ret, nil
}
