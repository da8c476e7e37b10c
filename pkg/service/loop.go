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

// Package service runs the edge-triggered authorization loop: scan the
// target port once per second, validate on the rising edge of device
// presence, and emit one result code per tick.
package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/PortGuardProject/portguard-core/pkg/usb"
	"github.com/PortGuardProject/portguard-core/pkg/validation"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const tickInterval = 1 * time.Second

// Scanner finds the device currently occupying the target port.
type Scanner interface {
	FindCandidate(targetPort string) (usb.Candidate, bool)
}

// Validator decides whether a present device is authorized.
type Validator interface {
	ValidateDevice(ctx context.Context, deviceName string) validation.Result
}

// Loop is the single-threaded authorization controller. Validation only
// runs on the rising edge of device presence; while the device stays
// attached the cached result is replayed, so the dongle is not
// re-mounted every second.
type Loop struct {
	scanner    Scanner
	validator  Validator
	clock      clockwork.Clock
	out        io.Writer
	targetPort string

	lastPresent  bool
	cachedResult validation.Result
}

func NewLoop(targetPort string, scanner Scanner, validator Validator, clock clockwork.Clock, out io.Writer) *Loop {
	return &Loop{
		scanner:    scanner,
		validator:  validator,
		clock:      clock,
		out:        out,
		targetPort: targetPort,
	}
}

// Run emits one result line per second until ctx is cancelled. The loop
// itself never fails: a broken tick degrades to Absent, clears the
// cached state, and the cadence continues.
func (l *Loop) Run(ctx context.Context) {
	ticker := l.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		l.emit(l.tick(ctx))

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// Once performs a single scan-and-validate pass, used by the -once flag.
func (l *Loop) Once(ctx context.Context) validation.Result {
	candidate, present := l.scanner.FindCandidate(l.targetPort)
	if !present {
		return validation.Absent
	}
	return l.validator.ValidateDevice(ctx, candidate.Device)
}

func (l *Loop) tick(ctx context.Context) (result validation.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("tick failed, degrading to absent")
			l.reset()
			result = validation.Absent
		}
	}()

	candidate, present := l.scanner.FindCandidate(l.targetPort)
	if !present {
		l.reset()
		return validation.Absent
	}

	if !l.lastPresent {
		log.Debug().
			Str("device", candidate.Device).
			Str("port", candidate.Port).
			Msg("device appeared on target port")
		l.cachedResult = l.validator.ValidateDevice(ctx, candidate.Device)
	}
	l.lastPresent = true
	return l.cachedResult
}

func (l *Loop) reset() {
	l.lastPresent = false
	l.cachedResult = validation.Absent
}

func (l *Loop) emit(result validation.Result) {
	if _, err := fmt.Fprintln(l.out, result.Code()); err != nil {
		log.Warn().Err(err).Msg("failed to write result")
	}
}
