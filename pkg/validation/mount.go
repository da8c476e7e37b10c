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
	"fmt"
	"time"

	"github.com/PortGuardProject/portguard-core/pkg/config"
	"github.com/PortGuardProject/portguard-core/pkg/helpers/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	mountTimeout  = 10 * time.Second
	umountTimeout = 10 * time.Second
)

// Mounter mounts block devices read-only at scoped temporary mount
// points through the system mount commands.
type Mounter struct {
	fs       afero.Fs
	executor command.Executor
}

func NewMounter(fs afero.Fs, executor command.Executor) *Mounter {
	return &Mounter{fs: fs, executor: executor}
}

// WithMount creates a fresh temporary mount point, mounts deviceName
// read-only there, runs fn against the mount path, then unmounts and
// removes the mount point. The teardown runs on every exit path,
// including a panic inside fn or cancellation of ctx: unmount and
// removal use their own deadlines so that an aborted caller still
// releases the mount.
func (m *Mounter) WithMount(ctx context.Context, deviceName string, fn func(mountPath string) error) error {
	mountPath, err := afero.TempDir(m.fs, "", config.AppName+"-")
	if err != nil {
		return fmt.Errorf("%w: create mount point: %w", ErrMountFailed, err)
	}
	defer func() {
		if err := m.fs.RemoveAll(mountPath); err != nil {
			log.Warn().Err(err).Str("mount_path", mountPath).Msg("failed to remove mount point")
		}
	}()

	mountCtx, cancel := context.WithTimeout(ctx, mountTimeout)
	defer cancel()
	if err := m.executor.Run(mountCtx, "mount", "-o", "ro", "/dev/"+deviceName, mountPath); err != nil {
		return fmt.Errorf("%w: %w", ErrMountFailed, err)
	}

	defer func() {
		// Detached from ctx: a cancelled tick must still unmount.
		umountCtx, cancel := context.WithTimeout(context.Background(), umountTimeout)
		defer cancel()
		if err := m.executor.Run(umountCtx, "umount", mountPath); err != nil {
			log.Warn().Err(err).Str("mount_path", mountPath).Msg("unmount failed")
		}
	}()

	return fn(mountPath)
}
