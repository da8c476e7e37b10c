// PortGuard Core
// Copyright (c) 2025 The PortGuard Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of PortGuard Core.
//
// PortGuard Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PortGuard Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PortGuard Core.  If not, see <http://www.gnu.org/licenses/>.

package usb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/PortGuardProject/portguard-core/pkg/helpers/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	udevadmTimeout = 5 * time.Second
	// serialProperty is the short controller serial in udevadm's property
	// dump, e.g. ID_SERIAL_SHORT=0716A546B321.
	serialProperty = "ID_SERIAL_SHORT"
)

// ErrNoSerial is returned when neither the sysfs attribute nor udevadm
// yields a usable serial number for a device.
var ErrNoSerial = errors.New("device exposes no usable serial number")

// CanonicalizeSerial applies the fixed transform the provisioning tool
// uses before hashing: strip leading, trailing and internal whitespace,
// then uppercase. The transform is idempotent. An empty result means the
// device has no serial, not that its serial is "".
func CanonicalizeSerial(serial string) string {
	return strings.ToUpper(strings.Join(strings.Fields(serial), ""))
}

// BaseDeviceName strips a trailing partition number ("sda1" -> "sda").
func BaseDeviceName(name string) string {
	return strings.TrimRightFunc(name, unicode.IsDigit)
}

// SerialResolver extracts hardware serial numbers for block devices,
// first from the sysfs serial attribute and then from the udev property
// database.
type SerialResolver struct {
	fs       afero.Fs
	executor command.Executor
}

func NewSerialResolver(fs afero.Fs, executor command.Executor) *SerialResolver {
	return &SerialResolver{fs: fs, executor: executor}
}

// ResolveSerial returns the canonicalized hardware serial for a device or
// partition name. The sysfs attribute of the whole disk is tried first;
// when it is missing or blank, udevadm is queried with a bounded timeout.
func (r *SerialResolver) ResolveSerial(ctx context.Context, deviceName string) (string, error) {
	base := BaseDeviceName(deviceName)

	raw, err := afero.ReadFile(r.fs, filepath.Join(sysBlockPath, base, "device", "serial"))
	if err == nil {
		if serial := CanonicalizeSerial(string(raw)); serial != "" {
			return serial, nil
		}
	}

	log.Debug().Str("device", base).Msg("sysfs serial attribute unusable, querying udev")
	return r.udevSerial(ctx, base)
}

func (r *SerialResolver) udevSerial(ctx context.Context, base string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, udevadmTimeout)
	defer cancel()

	out, err := r.executor.Output(ctx, "udevadm",
		"info", "--query=property", "--name", "/dev/"+base)
	if err != nil {
		return "", fmt.Errorf("udevadm query failed: %w", err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), serialProperty+"=")
		if !ok {
			continue
		}
		if serial := CanonicalizeSerial(value); serial != "" {
			return serial, nil
		}
	}
	return "", ErrNoSerial
}
