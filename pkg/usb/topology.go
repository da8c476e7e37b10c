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

// Package usb maps kernel block devices onto the physical USB port
// topology and resolves their hardware serial numbers.
package usb

import (
	"os"
	"path/filepath"
	"strings"
)

const sysBlockPath = "/sys/block"

// LinkResolver resolves filesystem symlinks. The sysfs device links cannot
// be represented in an in-memory filesystem, so resolution sits behind
// this seam.
type LinkResolver interface {
	EvalSymlinks(path string) (string, error)
}

// DefaultLinkResolver resolves links on the real filesystem.
type DefaultLinkResolver struct{}

//nolint:wrapcheck // Wrapping loses the *PathError the caller inspects
func (DefaultLinkResolver) EvalSymlinks(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// Topology resolves block devices to the USB ports they occupy.
type Topology struct {
	links LinkResolver
}

func NewTopology(links LinkResolver) *Topology {
	return &Topology{links: links}
}

// ResolvePort returns the sysfs USB port id (e.g. "2-1", "1-1.2") for a
// block device, or "" if the device is not behind a USB port or its
// device link cannot be resolved. A vanished device is a normal outcome
// here, not an error.
//
// The resolved link looks like .../usb2/2-1/2-1:1.0/host0/... — the
// segment after the bus root ("usb2") is the port id.
func (t *Topology) ResolvePort(deviceName string) string {
	target, err := t.links.EvalSymlinks(filepath.Join(sysBlockPath, deviceName, "device"))
	if err != nil {
		return ""
	}

	parts := strings.Split(target, string(os.PathSeparator))
	for i, part := range parts {
		if !strings.HasPrefix(part, "usb") || i+1 >= len(parts) {
			continue
		}
		port := parts[i+1]
		if strings.Contains(port, "-") && port[0] >= '0' && port[0] <= '9' {
			return port
		}
	}
	return ""
}

// PortMatches reports whether candidate is the target port itself or any
// port nested beneath it (a hub plugged into the target, or a composite
// device interface). Matching is on port hierarchy delimiters only:
// target "1-1" matches "1-1.2" and "1-1:1.0" but never "1-10".
func PortMatches(candidate, target string) bool {
	if candidate == "" {
		return false
	}
	if candidate == target {
		return true
	}
	return strings.HasPrefix(candidate, target+".") ||
		strings.HasPrefix(candidate, target+":")
}
