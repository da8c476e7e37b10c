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
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// diskDevicePrefix selects whole-disk SCSI/USB device names under
// /sys/block (sda, sdb, ...).
const diskDevicePrefix = "sd"

// Candidate is the removable device currently occupying the target port.
// Device carries the effective identity used for mounting: the sole
// partition's name when the disk has exactly one, the whole-disk name
// otherwise. Base always names the whole disk.
type Candidate struct {
	Device string
	Base   string
	Port   string
}

// Scanner enumerates removable block devices through sysfs.
type Scanner struct {
	fs       afero.Fs
	topology *Topology
}

func NewScanner(fs afero.Fs, topology *Topology) *Scanner {
	return &Scanner{fs: fs, topology: topology}
}

// FindCandidate returns the removable device on the target port, if any.
// Enumeration failures (sysfs unreadable, entries vanishing mid-scan)
// report absence rather than an error. Directory entries come back sorted
// by name, so when several devices sit beneath the target port the
// lexicographically first one wins deterministically.
func (s *Scanner) FindCandidate(targetPort string) (Candidate, bool) {
	entries, err := afero.ReadDir(s.fs, sysBlockPath)
	if err != nil {
		return Candidate{}, false
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, diskDevicePrefix) {
			continue
		}
		if !s.isRemovable(name) {
			continue
		}
		port := s.topology.ResolvePort(name)
		if !PortMatches(port, targetPort) {
			continue
		}
		return Candidate{
			Device: s.effectiveName(name),
			Base:   name,
			Port:   port,
		}, true
	}
	return Candidate{}, false
}

func (s *Scanner) isRemovable(name string) bool {
	data, err := afero.ReadFile(s.fs, filepath.Join(sysBlockPath, name, "removable"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// effectiveName prefers the partition's name when the disk exposes
// exactly one (sda -> sda1); with zero or several partitions the
// whole-disk name stands.
func (s *Scanner) effectiveName(name string) string {
	entries, err := afero.ReadDir(s.fs, filepath.Join(sysBlockPath, name))
	if err != nil {
		return name
	}

	var partitions []string
	for _, entry := range entries {
		sub := entry.Name()
		if sub != name && strings.HasPrefix(sub, name) {
			partitions = append(partitions, sub)
		}
	}
	if len(partitions) == 1 {
		return partitions[0]
	}
	return name
}
