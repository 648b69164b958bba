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

// Package device talks to Android devices. It exposes the few operations
// installing APKs needs: reading the device configuration, listing installed
// packages and running multi-package install sessions.
package device

import (
	"context"
	"fmt"

	"android/bundletool/model"
)

// Device is a connected device. Only one install session can be open on a
// device at a time; OpenInstallSession blocks until the previous session is
// committed or abandoned.
type Device interface {
	Serial() string
	Spec(ctx context.Context) (model.DeviceSpec, error)
	InstalledPackages(ctx context.Context) (map[string]bool, error)
	OpenInstallSession(ctx context.Context, opts SessionOptions) (InstallSession, error)
}

type SessionOptions struct {
	EnableRollback bool
	// Staged sessions are applied on the next reboot. They are required
	// when installing APEXes.
	Staged bool
}

// InstallSession installs packages atomically. Units staged for the same
// package are installed together; all packages are committed or abandoned
// together. Once Commit or Abandon returned, the session is closed.
type InstallSession interface {
	Stage(ctx context.Context, packageName, path string) error
	Commit(ctx context.Context) error
	Abandon(ctx context.Context) error
	// Rollback rolls back the packages of a committed session that was
	// created with EnableRollback.
	Rollback(ctx context.Context) error
}

// Bridge gives access to connected devices.
type Bridge interface {
	// Device returns the device with the given serial, or the only connected
	// device if serial is empty.
	Device(ctx context.Context, serial string) (Device, error)
}

// CommunicationError wraps every failure to talk to a device.
type CommunicationError struct {
	Op     string
	Serial string
	Err    error
}

func (e *CommunicationError) Error() string {
	if e.Serial == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s on device %s: %v", e.Op, e.Serial, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}
