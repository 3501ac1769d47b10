// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tracekit/vanprobe/pkg/vanbus"
)

var (
	outputFormat string
	traceFields  bool
	errorsOnly   bool
	printStats   bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a capture into frames",
	Long: `Decode a sample capture into VAN frames and print them as they complete.

Reads from a capture file, serial port or WebSocket stream, runs the full
decode pipeline (clock recovery, line decode, frame parsing, checksum
validation) and prints each frame in the selected format.

Output formats:
  text  human-readable, one block per frame (default)
  json  one JSON object per line
  cbor  binary CBOR records with integer keys

Use --fields to additionally trace every decoded field, and --errors-only to
suppress clean frames.`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text, json or cbor")
	decodeCmd.Flags().BoolVar(&traceFields, "fields", false, "Trace individual fields as they decode (text only)")
	decodeCmd.Flags().BoolVar(&errorsOnly, "errors-only", false, "Only print frames with errors or anomalies")
	decodeCmd.Flags().BoolVar(&printStats, "stats", true, "Print a statistics summary at end of stream")
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, err := buildDecodeConfig()
	if err != nil {
		return err
	}

	src, closer, info, err := OpenSampleSource()
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().Str("source", info).Int("sample_rate", cfg.SampleRate).Msg("decoding")

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	stats := vanbus.NewStatistics()
	var emitErr error

	sink := &vanbus.Callbacks{
		Frame: func(f *vanbus.Frame) {
			anomalies := vanbus.ValidateFrame(f)
			stats.Update(f, anomalies)
			if errorsOnly && f.Validity() == vanbus.FrameWellFormed &&
				f.CRCValid() && len(anomalies) == 0 {
				return
			}
			if err := writeFrame(out, f, cfg.SampleRate, anomalies); err != nil && emitErr == nil {
				emitErr = err
			}
		},
		Error: func(e vanbus.DecodeError) {
			stats.RecordError(e)
			if outputFormat == "text" {
				fmt.Fprint(out, vanbus.FormatError(e, cfg.SampleRate))
			}
		},
	}
	if traceFields && outputFormat == "text" {
		sink.Field = func(fld vanbus.Field) {
			fmt.Fprint(out, vanbus.FormatField(fld, cfg.SampleRate))
		}
	}

	pipeline, err := vanbus.NewPipeline(cfg, src, sink)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	if emitErr != nil {
		return emitErr
	}

	if printStats && outputFormat == "text" {
		out.Flush()
		fmt.Fprint(os.Stderr, "\n"+stats.String())
	}
	return nil
}

func writeFrame(out *bufio.Writer, f *vanbus.Frame, sampleRate int, anomalies []vanbus.ValidationError) error {
	switch outputFormat {
	case "text":
		fmt.Fprint(out, vanbus.FormatFrame(f, sampleRate))
		for _, a := range anomalies {
			fmt.Fprintf(out, "  Anomaly: %s\n", a.Message)
		}
		return nil

	case "json":
		line, err := vanbus.NewFrameRecord(f, sampleRate).EncodeJSONLine()
		if err != nil {
			return err
		}
		_, err = out.Write(line)
		return err

	case "cbor":
		blob, err := vanbus.NewFrameRecord(f, sampleRate).EncodeCBOR()
		if err != nil {
			return err
		}
		_, err = out.Write(blob)
		return err

	default:
		return fmt.Errorf("unknown output format %q (use text, json or cbor)", outputFormat)
	}
}
