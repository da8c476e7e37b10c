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

// Package signature verifies the dongle signatures produced by the
// provisioning tool: SHA-256 over the salted serial, RSA-PSS with
// MGF1(SHA-256) and maximum-length salt.
package signature

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
)

// SerialSalt is appended to the canonical serial before hashing. It must
// match the provisioning tool byte for byte; changing it revokes every
// dongle in the field.
const SerialSalt = "manufacture"

// Verify reports whether sig is a valid signature over the device serial.
// Malformed input of any kind, including a missing key, reports false.
func Verify(serial string, sig []byte, pub *rsa.PublicKey) bool {
	if pub == nil || serial == "" || len(sig) == 0 {
		return false
	}

	digest := sha256.Sum256([]byte(serial + SerialSalt))

	err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	return err == nil
}
