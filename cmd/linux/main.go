/*
PortGuard Core
Copyright (c) 2025 The PortGuard Project Contributors.
SPDX-License-Identifier: GPL-3.0-or-later

This file is part of PortGuard Core.

PortGuard Core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

PortGuard Core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with PortGuard Core.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/PortGuardProject/portguard-core/pkg/config"
	"github.com/PortGuardProject/portguard-core/pkg/helpers"
	"github.com/PortGuardProject/portguard-core/pkg/helpers/command"
	"github.com/PortGuardProject/portguard-core/pkg/service"
	"github.com/PortGuardProject/portguard-core/pkg/signature"
	"github.com/PortGuardProject/portguard-core/pkg/usb"
	"github.com/PortGuardProject/portguard-core/pkg/validation"
	"github.com/adrg/xdg"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	showVersion := flag.Bool(
		"version",
		false,
		"print version and exit",
	)
	daemonMode := flag.Bool(
		"daemon",
		false,
		"run in foreground with logs copied to stderr",
	)
	oncePass := flag.Bool(
		"once",
		false,
		"scan and validate a single time; the exit status mirrors the result code",
	)
	configDir := flag.String(
		"config-dir",
		"",
		"override the config directory",
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		return nil
	}

	dir := *configDir
	if dir == "" {
		dir = filepath.Join(xdg.ConfigHome, config.AppName)
	}

	cfg, err := config.NewConfig(dir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	var logWriters []io.Writer
	if *daemonMode {
		logWriters = []io.Writer{os.Stderr}
	}
	logDir := filepath.Join(xdg.StateHome, config.AppName)
	if err := helpers.InitLogging(logDir, cfg.DebugLogging(), logWriters); err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	fs := afero.NewOsFs()
	executor := &command.RealExecutor{}

	publicKey, err := signature.LoadPublicKey(fs, cfg.PublicKeyPath())
	if err != nil {
		// Keep running: absence still reports correctly, devices just
		// never validate.
		log.Warn().Err(err).Msg("no usable public key, devices will never validate")
	}

	scanner := usb.NewScanner(fs, usb.NewTopology(usb.DefaultLinkResolver{}))
	validator := validation.NewValidator(fs, executor, publicKey)
	loop := service.NewLoop(cfg.TargetPort(), scanner, validator, clockwork.NewRealClock(), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *oncePass {
		result := loop.Once(ctx)
		fmt.Println(result.Code())
		stop()
		os.Exit(exitCode(result))
	}

	log.Info().
		Str("target_port", cfg.TargetPort()).
		Str("version", config.AppVersion).
		Msg("starting authorization loop")
	loop.Run(ctx)

	log.Info().Msg("authorization loop stopped")
	return nil
}

// exitCode maps a result onto the process exit status for -once. The
// values mirror the wire protocol so scripts can reuse the same table.
func exitCode(result validation.Result) int {
	switch result {
	case validation.Valid:
		return 1
	case validation.Invalid:
		return 3
	default:
		return 0
	}
}
