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
	"context"
	"sync"

	"github.com/spf13/cobra"

	"android/bundletool/device"
	"android/bundletool/install"
	"android/bundletool/tools"
	"android/bundletool/ui/logger"
)

func newInstallMultiApksCmd(a *app) *cobra.Command {
	var (
		apks    []string
		apksZip string
		opts    install.Options
	)
	cmd := &cobra.Command{
		Use:   "install-multi-apks (--apks=<a.apks>,<b.apks> | --apks-zip=<archives.zip>)",
		Short: "Atomically install the APKs and APEXes of several APK sets",
		Long: `Installs the APKs and APEXes matching the connected device from several APK sets
in a single multi-package session: either every package is installed or none is.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bindFlags(cmd, keyDeviceID, keyAdb, keyAapt2)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := a.runner(cmd)
			adbPath := a.config.GetString(keyAdb)
			command, err := install.NewInstallMultiApksCommand(install.Config{
				ApksArchivePaths:   apks,
				ApksArchiveZipPath: apksZip,
				DeviceID:           a.config.GetString(keyDeviceID),
				AdbPath:            adbPath,
				EnableRollback:     opts.EnableRollback,
				UpdateOnly:         opts.UpdateOnly,
				NoCommit:           opts.NoCommit,
				Aapt2: func() (tools.Aapt2Command, error) {
					path, err := a.toolPath(keyAapt2, tools.LocateAapt2)
					if err != nil {
						return nil, err
					}
					return tools.NewAapt2Command(runner, path), nil
				},
				Bridge: &lazyBridge{connect: func() (device.Bridge, error) {
					path, err := a.toolPath(keyAdb, tools.LocateAdb)
					if err != nil {
						return nil, err
					}
					return a.env.newBridge(runner, path, a.log), nil
				}},
				Logger: a.log,
			})
			if err != nil {
				return err
			}
			if err := command.Execute(cmd.Context()); err != nil {
				return err
			}
			if n := logger.Warnings(a.log); n > 0 {
				a.log.Printf("Finished with %d warning(s).", n)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&apks, "apks", nil, "comma-separated list of .apks archives to install")
	flags.StringVar(&apksZip, "apks-zip", "", "zip file containing the .apks archives to install")
	flags.String(keyDeviceID, "", "serial of the device to install on (default $ANDROID_SERIAL)")
	flags.String(keyAdb, "", "path to the adb binary (default: located from $ANDROID_HOME or $PATH)")
	flags.String(keyAapt2, "", "path to the aapt2 binary (default: located from $ANDROID_HOME or $PATH)")
	flags.BoolVar(&opts.EnableRollback, "enable-rollback", false, "allow the installed packages to be rolled back")
	flags.BoolVar(&opts.UpdateOnly, "update-only", false, "only install packages already present on the device")
	flags.BoolVar(&opts.NoCommit, "no-commit", false, "stage the packages then abandon the session")
	return cmd
}

// lazyBridge locates adb when a device is first requested.
type lazyBridge struct {
	connect func() (device.Bridge, error)

	once   sync.Once
	bridge device.Bridge
	err    error
}

func (b *lazyBridge) Device(ctx context.Context, serial string) (device.Device, error) {
	b.once.Do(func() {
		b.bridge, b.err = b.connect()
	})
	if b.err != nil {
		return nil, b.err
	}
	return b.bridge.Device(ctx, serial)
}
