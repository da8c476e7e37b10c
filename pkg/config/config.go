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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

type Values struct {
	Auth         Auth `toml:"auth"`
	ConfigSchema int  `toml:"config_schema"`
	DebugLogging bool `toml:"debug_logging"`
}

type Auth struct {
	// TargetPort is the sysfs id of the physical USB port that dongles
	// must occupy, e.g. "2-1". A device on any port nested beneath it
	// (a hub downstream port, a composite interface) also matches.
	TargetPort string `toml:"target_port"`
	// PublicKeyPath optionally overrides the verification key source.
	PublicKeyPath string `toml:"public_key_path,omitempty"`
}

// BaseDefaults targets Bus 002 Port 001, the dongle slot on the reference
// hardware.
var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Auth: Auth{
		TargetPort: "2-1",
	},
}

// Instance is the process-wide configuration, loaded once at startup.
// Core components receive plain values from it, never the instance itself.
type Instance struct {
	cfgPath string
	vals    Values
	mu      sync.RWMutex
}

// NewConfig loads the config file from configDir, creating it with
// defaults when missing. The PORTGUARD_PORT environment variable takes
// precedence over the file's target port.
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfg := Instance{
		cfgPath: filepath.Join(configDir, CfgFile),
		vals:    defaults,
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := cfg.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		log.Info().Str("path", cfg.cfgPath).Msg("config file missing, creating defaults")
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("error saving default config: %w", err)
		}
	}

	if port, ok := os.LookupEnv(PortEnv); ok && port != "" {
		log.Info().Str("port", port).Msgf("target port overridden by %s", PortEnv)
		cfg.mu.Lock()
		cfg.vals.Auth.TargetPort = port
		cfg.mu.Unlock()
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	newVals := Values{}
	if err := toml.Unmarshal(data, &newVals); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	if newVals.ConfigSchema == 0 {
		newVals.ConfigSchema = SchemaVersion
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

func (c *Instance) TargetPort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Auth.TargetPort
}

func (c *Instance) PublicKeyPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Auth.PublicKeyPath
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}
