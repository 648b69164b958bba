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
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"

	"android/bundletool/device"
	"android/bundletool/ui/logger"
)

// Options are fixed for the whole transaction.
type Options struct {
	EnableRollback bool
	// UpdateOnly skips packages that are not already installed.
	UpdateOnly bool
	// NoCommit stages everything and then abandons the session.
	NoCommit bool
}

// Installer installs batches on one device. Every batch is installed in a
// single session: either all of its packages are installed or none is.
type Installer struct {
	device device.Device
	opts   Options
	log    logger.Logger

	snapshotOnce sync.Once
	snapshot     map[string]bool
	snapshotErr  error
}

func NewInstaller(dev device.Device, opts Options, log logger.Logger) *Installer {
	return &Installer{device: dev, opts: opts, log: log}
}

// InstalledPackages returns the packages installed on the device. The device
// is only queried the first time, before anything is installed; later calls
// return the same snapshot.
func (i *Installer) InstalledPackages(ctx context.Context) (map[string]bool, error) {
	i.snapshotOnce.Do(func() {
		i.snapshot, i.snapshotErr = i.device.InstalledPackages(ctx)
	})
	return i.snapshot, i.snapshotErr
}

// FilterUpdateOnly drops the packages that are not installed on the device
// when the UpdateOnly option is set.
func (i *Installer) FilterUpdateOnly(ctx context.Context, batch *Batch) (*Batch, error) {
	if !i.opts.UpdateOnly {
		return batch, nil
	}
	installed, err := i.InstalledPackages(ctx)
	if err != nil {
		return nil, err
	}
	return batch.Filter(func(pkg string) bool {
		if !installed[pkg] {
			i.log.Printf("Package '%s' not present on device, skipping due to --update-only.", pkg)
			return false
		}
		return true
	}), nil
}

// Install installs every package of batch in one session.
func (i *Installer) Install(ctx context.Context, batch *Batch) error {
	batch, err := i.FilterUpdateOnly(ctx, batch)
	if err != nil {
		return err
	}
	if batch.IsEmpty() {
		i.log.Warningf("No packages found to install! Exiting...")
		return nil
	}

	for _, pkg := range batch.Packages() {
		for _, apk := range batch.Units(pkg) {
			if _, err := os.Stat(apk.Path); err != nil {
				return &InputValidationError{Path: apk.Path, Msg: fmt.Sprintf("unable to stage package '%s'", pkg), Err: err}
			}
		}
	}

	session, err := i.device.OpenInstallSession(ctx, device.SessionOptions{
		EnableRollback: i.opts.EnableRollback,
		Staged:         batch.HasApex(),
	})
	if err != nil {
		return err
	}

	for _, pkg := range batch.Packages() {
		i.log.Verbosef("Staging package '%s'", pkg)
		for _, apk := range batch.Units(pkg) {
			if err := session.Stage(ctx, pkg, apk.Path); err != nil {
				return multierr.Append(
					fmt.Errorf("staging package '%s': %w", pkg, err),
					session.Abandon(ctx))
			}
		}
	}

	if i.opts.NoCommit {
		i.log.Printf("Staged %d package(s), abandoning the session due to --no-commit.", batch.Len())
		return session.Abandon(ctx)
	}

	if err := session.Commit(ctx); err != nil {
		if i.opts.EnableRollback {
			i.log.Warningf("Commit failed, rolling back: %v", err)
			return multierr.Append(err, session.Rollback(ctx))
		}
		return err
	}
	i.log.Printf("Installed %d package(s) on %s.", batch.Len(), i.device.Serial())
	return nil
}
