// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Capture source flags
	capturePath string
	portName    string
	baudRate    int

	// WebSocket source flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Decode parameter flags
	configPath   string
	sampleRate   int
	bitRate      int
	tolerance    float64
	maxRun       int
	glitchBudget int

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "vanprobe",
	Short: "VAN Bus Signal Analyzer",
	Long: `Vanprobe - A CLI tool for decoding and analyzing VAN automotive bus traffic
from logic-analyzer captures or live sample streams.

Recovers the bit clock from raw level samples, demodulates the biphase line
code, and parses frames with checksum validation, bit-stuffing checks and
glitch recovery.

Capture sources:
  File:      --capture trace.bin (packed samples, 8 per byte, LSB first)
  Serial:    --port /dev/ttyUSB0 [--baud 921600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the VANPROBE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Decode parameters can also be set in ~/.vanprobe/config.toml; command-line
flags take precedence.`,
	Version: "1.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	},
}

func init() {
	// Capture source flags
	rootCmd.PersistentFlags().StringVarP(&capturePath, "capture", "c", "", "Capture file of packed samples")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device streaming packed samples")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 921600, "Baud rate (serial only)")

	// WebSocket source flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Decode parameter flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.vanprobe/config.toml)")
	rootCmd.PersistentFlags().IntVarP(&sampleRate, "sample-rate", "s", 0, "Capture sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&bitRate, "bit-rate", 0, "Nominal line bit rate (default 125000)")
	rootCmd.PersistentFlags().Float64Var(&tolerance, "tolerance", 0, "Bit width tolerance fraction (default 0.25)")
	rootCmd.PersistentFlags().IntVar(&maxRun, "max-run", 0, "Identical-bit run length before a stuff bit (default 4)")
	rootCmd.PersistentFlags().IntVar(&glitchBudget, "glitch-budget", 0, "Consecutive recovered bits before resync (default 1)")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
