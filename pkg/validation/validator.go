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

package validation

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/PortGuardProject/portguard-core/pkg/helpers/command"
	"github.com/PortGuardProject/portguard-core/pkg/signature"
	"github.com/PortGuardProject/portguard-core/pkg/usb"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// SignatureFileName is the artifact the provisioning tool writes at the
// root of the dongle filesystem.
//
//nolint:gosec // Not a credential, just a filename
const SignatureFileName = "portguard.sig"

// maxSignatureSize bounds the artifact read. RSA-PSS signatures are a
// few hundred bytes; anything larger is not a signature.
const maxSignatureSize = 64 * 1024

// Sentinel errors classifying why a device failed validation. They never
// cross ValidateDevice, which flattens everything to Invalid; logs and
// tests inspect them.
var (
	ErrMountFailed      = errors.New("mount failed")
	ErrSignatureMissing = errors.New("signature file missing or unreadable")
	ErrSerialUnresolved = errors.New("serial number unresolved")
	ErrBadSignature     = errors.New("signature verification failed")
)

// Validator runs the mount, read, verify, unmount cycle for one device.
type Validator struct {
	fs        afero.Fs
	mounter   *Mounter
	serials   *usb.SerialResolver
	publicKey *rsa.PublicKey
}

func NewValidator(fs afero.Fs, executor command.Executor, publicKey *rsa.PublicKey) *Validator {
	return &Validator{
		fs:        fs,
		mounter:   NewMounter(fs, executor),
		serials:   usb.NewSerialResolver(fs, executor),
		publicKey: publicKey,
	}
}

// ValidateDevice mounts deviceName read-only, checks the signature
// artifact at the mount root against the device serial, and returns
// Valid or Invalid, never Absent. Every failure mode flattens to
// Invalid with the cause logged. No mount point or mounted filesystem
// survives the call on any path.
func (v *Validator) ValidateDevice(ctx context.Context, deviceName string) Result {
	if err := v.validate(ctx, deviceName); err != nil {
		log.Info().Err(err).Str("device", deviceName).Msg("device failed validation")
		return Invalid
	}
	log.Info().Str("device", deviceName).Msg("device validated")
	return Valid
}

func (v *Validator) validate(ctx context.Context, deviceName string) error {
	//nolint:wrapcheck // WithMount passes through validate's own errors
	return v.mounter.WithMount(ctx, deviceName, func(mountPath string) error {
		sig, err := v.readSignature(mountPath)
		if err != nil {
			return err
		}

		serial, err := v.serials.ResolveSerial(ctx, deviceName)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSerialUnresolved, err)
		}

		if !signature.Verify(serial, sig, v.publicKey) {
			return ErrBadSignature
		}
		return nil
	})
}

func (v *Validator) readSignature(mountPath string) ([]byte, error) {
	path := filepath.Join(mountPath, SignatureFileName)

	info, err := v.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureMissing, err)
	}
	if info.Size() == 0 || info.Size() > maxSignatureSize {
		return nil, fmt.Errorf("%w: implausible size %d", ErrSignatureMissing, info.Size())
	}

	sig, err := afero.ReadFile(v.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureMissing, err)
	}
	return sig, nil
}
