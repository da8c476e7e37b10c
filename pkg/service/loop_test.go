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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PortGuardProject/portguard-core/pkg/usb"
	"github.com/PortGuardProject/portguard-core/pkg/validation"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedScanner replays a fixed presence sequence, one entry per call.
type scriptedScanner struct {
	presence []bool
	calls    int
}

func (s *scriptedScanner) FindCandidate(string) (usb.Candidate, bool) {
	present := false
	if s.calls < len(s.presence) {
		present = s.presence[s.calls]
	}
	s.calls++
	if !present {
		return usb.Candidate{}, false
	}
	return usb.Candidate{Device: "sda1", Base: "sda", Port: "1-1.2"}, true
}

// scriptedValidator returns a fixed result per invocation and counts calls.
type scriptedValidator struct {
	results []validation.Result
	calls   int
}

func (v *scriptedValidator) ValidateDevice(context.Context, string) validation.Result {
	result := validation.Invalid
	if v.calls < len(v.results) {
		result = v.results[v.calls]
	}
	v.calls++
	return result
}

type panicValidator struct{}

func (panicValidator) ValidateDevice(context.Context, string) validation.Result {
	panic("validator blew up")
}

// syncBuffer guards a bytes.Buffer for the Run cadence tests, where the
// loop goroutine writes while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestTick_EdgeTriggeredValidation(t *testing.T) {
	t.Parallel()

	scanner := &scriptedScanner{presence: []bool{false, true, true, true, false, true}}
	validator := &scriptedValidator{results: []validation.Result{validation.Valid, validation.Invalid}}
	loop := NewLoop("1-1", scanner, validator, clockwork.NewFakeClock(), &bytes.Buffer{})

	var results []validation.Result
	for range scanner.presence {
		results = append(results, loop.tick(context.Background()))
	}

	assert.Equal(t, []validation.Result{
		validation.Absent,
		validation.Valid,
		validation.Valid,
		validation.Valid,
		validation.Absent,
		validation.Invalid,
	}, results)
	assert.Equal(t, 2, validator.calls,
		"validation runs only on the rising edges, not on steady presence")
}

func TestTick_PanicDegradesToAbsent(t *testing.T) {
	t.Parallel()

	scanner := &scriptedScanner{presence: []bool{true, true}}
	loop := NewLoop("1-1", scanner, panicValidator{}, clockwork.NewFakeClock(), &bytes.Buffer{})

	result := loop.tick(context.Background())
	assert.Equal(t, validation.Absent, result)
	assert.False(t, loop.lastPresent, "state resets after a broken tick")

	// The next tick sees a rising edge again and the loop keeps going.
	result = loop.tick(context.Background())
	assert.Equal(t, validation.Absent, result)
}

func TestRun_EmitsOncePerSecond(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	out := &syncBuffer{}
	scanner := &scriptedScanner{presence: []bool{false, false, false, false}}
	loop := NewLoop("1-1", scanner, &scriptedValidator{}, clock, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	// First emission happens immediately, before the first tick elapses.
	require.Eventually(t, func() bool { return len(out.Lines()) == 1 },
		time.Second, time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(tickInterval)
	require.Eventually(t, func() bool { return len(out.Lines()) == 2 },
		time.Second, time.Millisecond)

	clock.Advance(tickInterval)
	require.Eventually(t, func() bool { return len(out.Lines()) == 3 },
		time.Second, time.Millisecond)

	assert.Equal(t, []string{"0", "0", "0"}, out.Lines())

	cancel()
	<-done
}

func TestOnce(t *testing.T) {
	t.Parallel()

	t.Run("absent", func(t *testing.T) {
		t.Parallel()

		scanner := &scriptedScanner{presence: []bool{false}}
		loop := NewLoop("1-1", scanner, &scriptedValidator{}, clockwork.NewFakeClock(), &bytes.Buffer{})

		assert.Equal(t, validation.Absent, loop.Once(context.Background()))
	})

	t.Run("present_and_valid", func(t *testing.T) {
		t.Parallel()

		scanner := &scriptedScanner{presence: []bool{true}}
		validator := &scriptedValidator{results: []validation.Result{validation.Valid}}
		loop := NewLoop("1-1", scanner, validator, clockwork.NewFakeClock(), &bytes.Buffer{})

		assert.Equal(t, validation.Valid, loop.Once(context.Background()))
	})
}
