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
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"android/bundletool/model"
	"android/bundletool/tools"
	"android/bundletool/ui/logger"
)

// The directory APKs are pushed to before being written to a session.
const deviceTmpDir = "/data/local/tmp"

// AdbBridge reaches devices by running the adb binary.
type AdbBridge struct {
	runner  tools.Runner
	adbPath string
	log     logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ Bridge = &AdbBridge{}

func NewAdbBridge(runner tools.Runner, adbPath string, log logger.Logger) *AdbBridge {
	return &AdbBridge{
		runner:  runner,
		adbPath: adbPath,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Devices returns the serials of the devices in the "device" state.
func (b *AdbBridge) Devices(ctx context.Context) ([]string, error) {
	out, err := b.runner.Run(ctx, tools.Command{Path: b.adbPath, Args: []string{"devices"}})
	if err != nil {
		return nil, &CommunicationError{Op: "list devices", Err: err}
	}
	var ret []string
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			ret = append(ret, fields[0])
		}
	}
	return ret, nil
}

func (b *AdbBridge) Device(ctx context.Context, serial string) (Device, error) {
	serials, err := b.Devices(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case serial != "":
		found := false
		for _, s := range serials {
			found = found || s == serial
		}
		if !found {
			return nil, &CommunicationError{Op: "connect", Serial: serial, Err: fmt.Errorf("device not found")}
		}
	case len(serials) == 0:
		return nil, &CommunicationError{Op: "connect", Err: fmt.Errorf("no connected devices")}
	case len(serials) > 1:
		return nil, &CommunicationError{Op: "connect",
			Err: fmt.Errorf("more than one device connected, please provide a device id: %s", strings.Join(serials, ", "))}
	default:
		serial = serials[0]
	}
	return &adbDevice{bridge: b, serial: serial, lock: b.lock(serial)}, nil
}

func (b *AdbBridge) lock(serial string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[serial]
	if !ok {
		l = &sync.Mutex{}
		b.locks[serial] = l
	}
	return l
}

type adbDevice struct {
	bridge *AdbBridge
	serial string
	// lock is held while an install session is open.
	lock *sync.Mutex
}

func (d *adbDevice) Serial() string {
	return d.serial
}

func (d *adbDevice) adb(ctx context.Context, op string, args ...string) (string, error) {
	out, err := d.bridge.runner.Run(ctx, tools.Command{
		Path: d.bridge.adbPath,
		Args: append([]string{"-s", d.serial}, args...),
	})
	if err != nil {
		return "", &CommunicationError{Op: op, Serial: d.serial, Err: err}
	}
	return string(out), nil
}

func (d *adbDevice) shell(ctx context.Context, op string, args ...string) (string, error) {
	return d.adb(ctx, op, append([]string{"shell"}, args...)...)
}

func (d *adbDevice) Spec(ctx context.Context) (spec model.DeviceSpec, err error) {
	out, err := d.shell(ctx, "read device properties", "getprop")
	if err != nil {
		return spec, err
	}
	spec, err = SpecFromProperties(ParseProperties(out))
	if err != nil {
		return spec, &CommunicationError{Op: "read device properties", Serial: d.serial, Err: err}
	}
	return spec, nil
}

func (d *adbDevice) InstalledPackages(ctx context.Context) (map[string]bool, error) {
	out, err := d.shell(ctx, "list packages", "pm", "list", "packages")
	if err != nil {
		return nil, err
	}
	return ParsePackages(out), nil
}

var sessionID = regexp.MustCompile(`\[(\d+)\]`)

// pm reports most failures on stdout with a zero exit status.
func (d *adbDevice) pm(ctx context.Context, op string, args ...string) (string, error) {
	out, err := d.shell(ctx, op, append([]string{"pm"}, args...)...)
	if err != nil {
		return "", err
	}
	if !strings.Contains(out, "Success") {
		return "", &CommunicationError{Op: op, Serial: d.serial, Err: fmt.Errorf("%s", strings.TrimSpace(out))}
	}
	return out, nil
}

func (d *adbDevice) createSession(ctx context.Context, opts SessionOptions, extra ...string) (int, error) {
	args := []string{"install-create"}
	args = append(args, extra...)
	if opts.Staged {
		args = append(args, "--staged")
	}
	if opts.EnableRollback {
		args = append(args, "--enable-rollback")
	}
	out, err := d.pm(ctx, "create install session", args...)
	if err != nil {
		return 0, err
	}
	m := sessionID.FindStringSubmatch(out)
	if m == nil {
		return 0, &CommunicationError{Op: "create install session", Serial: d.serial,
			Err: fmt.Errorf("unexpected output %q", strings.TrimSpace(out))}
	}
	return strconv.Atoi(m[1])
}

func (d *adbDevice) OpenInstallSession(ctx context.Context, opts SessionOptions) (InstallSession, error) {
	d.lock.Lock()
	id, err := d.createSession(ctx, opts, "--multi-package")
	if err != nil {
		d.lock.Unlock()
		return nil, err
	}
	d.bridge.log.Verbosef("opened install session %d on %s", id, d.serial)
	return &adbSession{
		device:   d,
		opts:     opts,
		id:       id,
		children: make(map[string]int),
	}, nil
}

type adbSession struct {
	device   *adbDevice
	opts     SessionOptions
	id       int
	children map[string]int
	// packages in staging order.
	packages []string
	pushed   []string
	closed   bool
}

func (s *adbSession) Stage(ctx context.Context, packageName, apk string) error {
	if s.closed {
		return fmt.Errorf("install session %d is closed", s.id)
	}
	child, ok := s.children[packageName]
	if !ok {
		var extra []string
		if strings.HasSuffix(apk, ".apex") {
			extra = append(extra, "--apex")
		}
		var err error
		if child, err = s.device.createSession(ctx, s.opts, extra...); err != nil {
			return err
		}
		if _, err := s.device.pm(ctx, "add session",
			"install-add-session", strconv.Itoa(s.id), strconv.Itoa(child)); err != nil {
			// The parent doesn't own the child yet.
			if _, abandonErr := s.device.pm(ctx, "abandon install session",
				"install-abandon", strconv.Itoa(child)); abandonErr != nil {
				err = multierr.Append(err, abandonErr)
			}
			return err
		}
		s.children[packageName] = child
		s.packages = append(s.packages, packageName)
	}

	remote := path.Join(deviceTmpDir, fmt.Sprintf("%d_%d_%s", s.id, len(s.pushed), filepath.Base(apk)))
	if _, err := s.device.adb(ctx, "push "+filepath.Base(apk), "push", apk, remote); err != nil {
		return err
	}
	s.pushed = append(s.pushed, remote)

	size, err := s.device.shell(ctx, "stat "+remote, "stat", "-c", "%s", remote)
	if err != nil {
		return err
	}
	splitName := strings.TrimSuffix(path.Base(remote), path.Ext(remote))
	_, err = s.device.pm(ctx, "write "+filepath.Base(apk),
		"install-write", "-S", strings.TrimSpace(size), strconv.Itoa(child), splitName, remote)
	return err
}

func (s *adbSession) Commit(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("install session %d is closed", s.id)
	}
	defer s.close(ctx)
	_, err := s.device.pm(ctx, "commit install session", "install-commit", strconv.Itoa(s.id))
	return err
}

func (s *adbSession) Abandon(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("install session %d is closed", s.id)
	}
	defer s.close(ctx)
	_, err := s.device.pm(ctx, "abandon install session", "install-abandon", strconv.Itoa(s.id))
	return err
}

func (s *adbSession) Rollback(ctx context.Context) error {
	if !s.opts.EnableRollback {
		return fmt.Errorf("install session %d was not created with rollback enabled", s.id)
	}
	for _, pkg := range s.packages {
		if _, err := s.device.pm(ctx, "rollback "+pkg, "rollback-app", pkg); err != nil {
			return err
		}
	}
	return nil
}

// close removes the pushed files and releases the device.
func (s *adbSession) close(ctx context.Context) {
	s.closed = true
	defer s.device.lock.Unlock()
	if len(s.pushed) == 0 {
		return
	}
	if _, err := s.device.shell(ctx, "clean up", append([]string{"rm", "-f"}, s.pushed...)...); err != nil {
		s.device.bridge.log.Warningf("%v", err)
	}
}
