// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import (
	"fmt"
	"strings"
)

// FormatFrame formats a decoded frame into a human-readable string. The
// sample rate converts tick offsets into wall-clock microseconds.
func FormatFrame(f *Frame, sampleRate int) string {
	ts := tickMicros(f.StartTick(), sampleRate)

	result := fmt.Sprintf("[%12.1fµs] ID=0x%03X %s %s", ts, f.Ident(), FormatControlFlags(f), f.Validity())

	if f.Validity() == FrameWellFormed {
		if f.CRCValid() {
			result += " crc=ok"
		} else {
			result += fmt.Sprintf(" crc=BAD(0x%04X)", f.CRC())
		}
		if f.Ack() {
			result += " ack"
		}
	}
	if f.RecoveredBits() > 0 {
		result += fmt.Sprintf(" recovered=%d", f.RecoveredBits())
	}
	if err := f.Err(); err != nil && f.Validity() != FrameWellFormed {
		result += fmt.Sprintf(" (%s: %s)", err.Kind, err.Reason)
	}
	result += "\n"

	if len(f.Data()) > 0 {
		result += FormatPayload(f.Data())
	}

	return result
}

// FormatControlFlags renders the four control flags as a compact tag like
// "EXT+RAK" or "RTR".
func FormatControlFlags(f *Frame) string {
	flags := []string{}
	if f.Ext() {
		flags = append(flags, "EXT")
	}
	if f.Rak() {
		flags = append(flags, "RAK")
	}
	if f.RW() {
		flags = append(flags, "RD")
	}
	if f.RTR() {
		flags = append(flags, "RTR")
	}
	if len(flags) == 0 {
		return "WR"
	}
	return strings.Join(flags, "+")
}

// FormatPayload renders payload bytes as an indented hex dump
func FormatPayload(payload []byte) string {
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatField formats a single field event, for bit-level traces
func FormatField(fld Field, sampleRate int) string {
	ts := tickMicros(fld.StartTick, sampleRate)
	if fld.Kind == FieldDataByte {
		return fmt.Sprintf("[%12.1fµs] %s[%d] = 0x%02X\n", ts, fld.Kind, fld.Index, fld.Value)
	}
	return fmt.Sprintf("[%12.1fµs] %s = 0x%X (%d bits)\n", ts, fld.Kind, fld.Value, fld.Bits)
}

// FormatError formats a standalone decode error
func FormatError(e DecodeError, sampleRate int) string {
	return fmt.Sprintf("[%12.1fµs] %s: %s\n", tickMicros(e.Tick, sampleRate), e.Kind, e.Reason)
}

func tickMicros(tick uint64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(tick) * 1e6 / float64(sampleRate)
}
