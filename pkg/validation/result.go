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

// Package validation mounts a candidate device, checks its signature
// artifact against the device serial, and reports the tri-state
// authorization result.
package validation

// Result is the tri-state outcome reported once per second.
type Result int

const (
	// Absent means no device occupies the target port.
	Absent Result = iota
	// Valid and Invalid are only produced by a completed
	// mount-and-verify cycle.
	Valid
	Invalid
)

// Code returns the wire encoding consumed by the provisioning line's
// monitor. Code "2" is reserved there, hence the gap.
func (r Result) Code() string {
	switch r {
	case Valid:
		return "1"
	case Invalid:
		return "3"
	default:
		return "0"
	}
}

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "absent"
	}
}
