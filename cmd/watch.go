// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tracekit/vanprobe/pkg/vanbus"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor live bus traffic with error analysis",
	Long: `Track frames, decode errors and anomalies on a live sample stream.

This command validates each frame and detects:
  - Framing errors (stuffing violations, bad grammar, lost bit lock)
  - Checksum mismatches
  - Protocol anomalies (missing acknowledgements, reserved identifiers,
    frames needing heavy glitch recovery)
  - Statistics and trends (frame rate, error rate, recovered bits)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	watchCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	watchCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// watchEvent is one decode event crossing from the pipeline goroutine to the
// display loop.
type watchEvent struct {
	frame     *vanbus.Frame
	anomalies []vanbus.ValidationError
	busErr    *vanbus.DecodeError
	done      bool
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := buildDecodeConfig()
	if err != nil {
		return err
	}

	src, closer, info, err := OpenSampleSource()
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events := make(chan watchEvent, 64)
	go func() {
		sink := &vanbus.Callbacks{
			Frame: func(f *vanbus.Frame) {
				events <- watchEvent{frame: f, anomalies: vanbus.ValidateFrame(f)}
			},
			Error: func(e vanbus.DecodeError) {
				events <- watchEvent{busErr: &e}
			},
		}
		pipeline, err := vanbus.NewPipeline(cfg, src, sink)
		if err != nil {
			log.Error().Err(err).Msg("pipeline setup failed")
			events <- watchEvent{done: true}
			return
		}
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("decode stopped")
		}
		events <- watchEvent{done: true}
	}()

	if useTUI {
		return runWatchTUI(ctx, info, cfg, events)
	}
	return runWatchText(ctx, info, cfg, events)
}

// runWatchText runs the watch loop in plain text mode
func runWatchText(ctx context.Context, info string, cfg vanbus.Config, events <-chan watchEvent) error {
	fmt.Printf("Vanprobe - Bus Watch\n")
	fmt.Printf("Source: %s @ %d Hz\n", info, cfg.SampleRate)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := vanbus.NewStatistics()
	locked := false

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case ev := <-events:
			switch {
			case ev.done:
				fmt.Println()
				fmt.Print(stats.String())
				return nil

			case ev.busErr != nil:
				if locked {
					stats.RecordError(*ev.busErr)
					fmt.Printf("\033[1;31mBUS GLITCH:\033[0m %s", vanbus.FormatError(*ev.busErr, cfg.SampleRate))
				}

			case ev.frame != nil:
				f := ev.frame
				if !locked && f.Validity() == vanbus.FrameWellFormed {
					locked = true
					fmt.Printf("[LOCK] Bus lock acquired\n\n")
				}
				stats.Update(f, ev.anomalies)

				bad := f.Validity() != vanbus.FrameWellFormed || !f.CRCValid() || len(ev.anomalies) > 0
				if bad || showAll {
					fmt.Print(vanbus.FormatFrame(f, cfg.SampleRate))
					for _, a := range ev.anomalies {
						fmt.Printf("  \033[1;33mAnomaly:\033[0m %s\n", a.Message)
					}
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// runWatchTUI runs the watch loop under the terminal UI
func runWatchTUI(ctx context.Context, info string, cfg vanbus.Config, events <-chan watchEvent) error {
	m := initialWatchModel(info, cfg, showAll)
	p := tea.NewProgram(m)

	// Event forwarder goroutine
	go func() {
		for {
			select {
			case <-ctx.Done():
				p.Send(sourceClosedMsg{})
				return
			case ev := <-events:
				if ev.done {
					p.Send(sourceClosedMsg{})
					return
				}
				p.Send(busEventMsg{ev: ev})
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
