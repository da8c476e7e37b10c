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

package service

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/PortGuardProject/portguard-core/pkg/signature"
	"github.com/PortGuardProject/portguard-core/pkg/usb"
	"github.com/PortGuardProject/portguard-core/pkg/validation"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The tests below wire the real scanner and validator over an in-memory
// sysfs, faking only symlink resolution and the mount/udevadm commands.

type staticLinkResolver struct {
	targets map[string]string
}

func (r *staticLinkResolver) EvalSymlinks(path string) (string, error) {
	target, ok := r.targets[path]
	if !ok {
		return "", errors.New("no such file or directory")
	}
	return target, nil
}

// e2eExecutor mounts by planting the signature file (when one is
// configured) at the mount root.
type e2eExecutor struct {
	fs  afero.Fs
	sig []byte
}

func (e *e2eExecutor) Run(_ context.Context, name string, args ...string) error {
	if name == "mount" && e.sig != nil {
		return afero.WriteFile(e.fs, args[len(args)-1]+"/"+validation.SignatureFileName, e.sig, 0o444)
	}
	return nil
}

func (*e2eExecutor) Output(context.Context, string, ...string) ([]byte, error) {
	return nil, errors.New("udevadm unavailable")
}

func e2eFixture(t *testing.T, serial string, sig []byte, pub *rsa.PublicKey) *Loop {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/sys/block/sda/removable", []byte("1\n"), 0o444))
	require.NoError(t, fs.MkdirAll("/sys/block/sda/sda1", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/sys/block/sda/device/serial", []byte(serial+"\n"), 0o444))

	resolver := &staticLinkResolver{targets: map[string]string{
		"/sys/block/sda/device": "/sys/devices/platform/soc/3f980000.usb/usb1/1-1.2/1-1.2:1.0/host0/target0:0:0/0:0:0:0",
	}}

	scanner := usb.NewScanner(fs, usb.NewTopology(resolver))
	validator := validation.NewValidator(fs, &e2eExecutor{fs: fs, sig: sig}, pub)
	return NewLoop("1-1", scanner, validator, clockwork.NewFakeClock(), &bytes.Buffer{})
}

func TestEndToEnd_ValidDongle(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	serial := "0716A546B321"
	digest := sha256.Sum256([]byte(serial + signature.SerialSalt))
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	require.NoError(t, err)

	loop := e2eFixture(t, serial, sig, &priv.PublicKey)

	// The device stays attached: validation happens once, every tick
	// replays the cached Valid.
	for range 3 {
		assert.Equal(t, validation.Valid, loop.tick(context.Background()))
	}
}

func TestEndToEnd_MissingSignatureFile(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	loop := e2eFixture(t, "0716A546B321", nil, &priv.PublicKey)

	for range 3 {
		assert.Equal(t, validation.Invalid, loop.tick(context.Background()))
	}
}

func TestEndToEnd_NoDeviceOnPort(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	loop := e2eFixture(t, "0716A546B321", nil, &priv.PublicKey)
	loop.targetPort = "2-1"

	assert.Equal(t, validation.Absent, loop.tick(context.Background()))
}
