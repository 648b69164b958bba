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

package device

import (
	"context"
	"fmt"
	"sync"

	"android/bundletool/model"
)

// FakeDevice is an in-memory Device for tests. Committing a session adds its
// packages to Installed.
type FakeDevice struct {
	SerialNumber string
	DeviceSpec   model.DeviceSpec

	// Failures to inject.
	ListErr   error
	SpecErr   error
	OpenErr   error
	StageErr  map[string]error // by package name
	CommitErr error

	mu        sync.Mutex
	installed map[string]bool
	listCalls int
	sessions  []*FakeSession
	open      bool
}

var _ Device = &FakeDevice{}

func NewFakeDevice(serial string, spec model.DeviceSpec, installed ...string) *FakeDevice {
	d := &FakeDevice{
		SerialNumber: serial,
		DeviceSpec:   spec,
		installed:    make(map[string]bool),
	}
	for _, p := range installed {
		d.installed[p] = true
	}
	return d
}

func (d *FakeDevice) Serial() string {
	return d.SerialNumber
}

func (d *FakeDevice) Spec(context.Context) (model.DeviceSpec, error) {
	if d.SpecErr != nil {
		return model.DeviceSpec{}, &CommunicationError{Op: "read device properties", Serial: d.SerialNumber, Err: d.SpecErr}
	}
	return d.DeviceSpec, nil
}

func (d *FakeDevice) InstalledPackages(context.Context) (map[string]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listCalls++
	if d.ListErr != nil {
		return nil, &CommunicationError{Op: "list packages", Serial: d.SerialNumber, Err: d.ListErr}
	}
	ret := make(map[string]bool, len(d.installed))
	for p := range d.installed {
		ret[p] = true
	}
	return ret, nil
}

// ListCalls returns how many times InstalledPackages was called.
func (d *FakeDevice) ListCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listCalls
}

// Sessions returns every session opened so far.
func (d *FakeDevice) Sessions() []*FakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSession(nil), d.sessions...)
}

func (d *FakeDevice) OpenInstallSession(_ context.Context, opts SessionOptions) (InstallSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, &CommunicationError{Op: "create install session", Serial: d.SerialNumber, Err: d.OpenErr}
	}
	if d.open {
		return nil, &CommunicationError{Op: "create install session", Serial: d.SerialNumber,
			Err: fmt.Errorf("another install session is open")}
	}
	d.open = true
	s := &FakeSession{device: d, Options: opts, Staged: make(map[string][]string)}
	d.sessions = append(d.sessions, s)
	return s, nil
}

type SessionState int

const (
	SessionOpen SessionState = iota
	SessionCommitted
	SessionAbandoned
	SessionRolledBack
)

func (s SessionState) String() string {
	return [...]string{"open", "committed", "abandoned", "rolled back"}[s]
}

type FakeSession struct {
	device  *FakeDevice
	Options SessionOptions
	// Staged maps package names to their staged paths, Packages lists them
	// in staging order.
	Staged   map[string][]string
	Packages []string
	State    SessionState
	// added are the packages the commit installed.
	added []string
}

func (s *FakeSession) Stage(_ context.Context, packageName, path string) error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.State != SessionOpen {
		return fmt.Errorf("session is %s", s.State)
	}
	if err := s.device.StageErr[packageName]; err != nil {
		return &CommunicationError{Op: "write " + path, Serial: s.device.SerialNumber, Err: err}
	}
	if _, ok := s.Staged[packageName]; !ok {
		s.Packages = append(s.Packages, packageName)
	}
	s.Staged[packageName] = append(s.Staged[packageName], path)
	return nil
}

func (s *FakeSession) Commit(context.Context) error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.State != SessionOpen {
		return fmt.Errorf("session is %s", s.State)
	}
	s.device.open = false
	if s.device.CommitErr != nil {
		s.State = SessionAbandoned
		return &CommunicationError{Op: "commit install session", Serial: s.device.SerialNumber, Err: s.device.CommitErr}
	}
	s.State = SessionCommitted
	for _, p := range s.Packages {
		if !s.device.installed[p] {
			s.device.installed[p] = true
			s.added = append(s.added, p)
		}
	}
	return nil
}

func (s *FakeSession) Abandon(context.Context) error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.State != SessionOpen {
		return fmt.Errorf("session is %s", s.State)
	}
	s.device.open = false
	s.State = SessionAbandoned
	return nil
}

func (s *FakeSession) Rollback(context.Context) error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if !s.Options.EnableRollback {
		return fmt.Errorf("session was not created with rollback enabled")
	}
	for _, p := range s.added {
		delete(s.device.installed, p)
	}
	s.added = nil
	s.State = SessionRolledBack
	return nil
}

// FakeBridge serves FakeDevices by serial.
type FakeBridge struct {
	Devices []*FakeDevice
}

var _ Bridge = &FakeBridge{}

func (b *FakeBridge) Device(_ context.Context, serial string) (Device, error) {
	if serial == "" {
		if len(b.Devices) != 1 {
			return nil, &CommunicationError{Op: "connect", Err: fmt.Errorf("expected exactly one device, found %d", len(b.Devices))}
		}
		return b.Devices[0], nil
	}
	for _, d := range b.Devices {
		if d.SerialNumber == serial {
			return d, nil
		}
	}
	return nil, &CommunicationError{Op: "connect", Serial: serial, Err: fmt.Errorf("device not found")}
}
