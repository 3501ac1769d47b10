// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/tracekit/vanprobe/pkg/vanbus"
)

// fileConfig is the on-disk configuration. Every field is optional; values
// left at zero fall through to flags and then to protocol defaults.
type fileConfig struct {
	SampleRate   int     `toml:"sample_rate"`
	BitRate      int     `toml:"bit_rate"`
	Tolerance    float64 `toml:"tolerance"`
	EMAAlpha     float64 `toml:"ema_alpha"`
	MaxRun       int     `toml:"max_run"`
	GlitchBudget int     `toml:"glitch_budget"`

	Port     string `toml:"port"`
	Baud     int    `toml:"baud"`
	URL      string `toml:"url"`
	Username string `toml:"username"`
}

// defaultConfigPath returns ~/.vanprobe/config.toml.
func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".vanprobe", "config.toml"), nil
}

// loadFileConfig reads the config file. A missing default file is not an
// error; a missing explicitly-requested file is.
func loadFileConfig() (fileConfig, error) {
	var cfg fileConfig

	path := configPath
	explicit := path != ""
	if !explicit {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("loaded config file")
	return cfg, nil
}

// buildDecodeConfig merges the config file with command-line flags. Flags
// win over the file, the file wins over protocol defaults.
func buildDecodeConfig() (vanbus.Config, error) {
	file, err := loadFileConfig()
	if err != nil {
		return vanbus.Config{}, err
	}

	cfg := vanbus.Config{
		SampleRate:   file.SampleRate,
		BitRate:      file.BitRate,
		Tolerance:    file.Tolerance,
		EMAAlpha:     file.EMAAlpha,
		MaxRun:       file.MaxRun,
		GlitchBudget: file.GlitchBudget,
	}
	if sampleRate != 0 {
		cfg.SampleRate = sampleRate
	}
	if bitRate != 0 {
		cfg.BitRate = bitRate
	}
	if tolerance != 0 {
		cfg.Tolerance = tolerance
	}
	if maxRun != 0 {
		cfg.MaxRun = maxRun
	}
	if glitchBudget != 0 {
		cfg.GlitchBudget = glitchBudget
	}

	if cfg.SampleRate == 0 {
		return cfg, fmt.Errorf("sample rate is required (--sample-rate or sample_rate in config)")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	// Connection settings from the file only apply when the flags are unset.
	if portName == "" && file.Port != "" {
		portName = file.Port
	}
	if file.Baud != 0 && !rootCmd.PersistentFlags().Changed("baud") {
		baudRate = file.Baud
	}
	if wsURL == "" && file.URL != "" {
		wsURL = file.URL
	}
	if wsUsername == "" && file.Username != "" {
		wsUsername = file.Username
	}

	return cfg, nil
}
