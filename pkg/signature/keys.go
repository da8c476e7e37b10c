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

package signature

import (
	"crypto/rsa"
	"crypto/x509"
	_ "embed"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// The embedded key ships as a placeholder in source builds; release
// builds replace public.pem with the provisioning line's real key.
//
//go:embed public.pem
var embeddedPublicKey []byte

const (
	// placeholderMarker identifies an unprovisioned embedded key.
	placeholderMarker = "PORTGUARD PLACEHOLDER PUBLIC KEY"
	// FallbackKeyPath is consulted when the embedded key is the
	// placeholder and no override path is configured.
	FallbackKeyPath = "/etc/portguard/public.pem"
)

// ErrNoPublicKey means no key source yielded a usable RSA public key.
// Verification without a key always fails, it is never trivially valid.
var ErrNoPublicKey = errors.New("no usable public key")

// LoadPublicKey resolves the verification key. overridePath, when
// non-empty, wins over both the embedded key and the fallback file.
func LoadPublicKey(fs afero.Fs, overridePath string) (*rsa.PublicKey, error) {
	if overridePath != "" {
		data, err := afero.ReadFile(fs, overridePath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrNoPublicKey, overridePath, err)
		}
		return ParsePublicKey(data)
	}

	data := embeddedPublicKey
	if strings.Contains(string(data), placeholderMarker) {
		log.Debug().Str("path", FallbackKeyPath).Msg("embedded key is a placeholder, trying fallback file")
		fileData, err := afero.ReadFile(fs, FallbackKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: embedded key is a placeholder and %s is unreadable: %w",
				ErrNoPublicKey, FallbackKeyPath, err)
		}
		data = fileData
	}
	return ParsePublicKey(data)
}

// ParsePublicKey decodes a PEM-encoded PKIX RSA public key.
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: not PEM encoded", ErrNoPublicKey)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPublicKey, err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is %T, want RSA", ErrNoPublicKey, pub)
	}
	return rsaPub, nil
}
