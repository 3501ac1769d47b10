// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// Validator Tests
// ============================================================

func hasAnomaly(errs []ValidationError, typ AnomalyType) bool {
	for _, e := range errs {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestValidateFrame_Clean(t *testing.T) {
	f := &Frame{ident: 0x4D2, rw: true, crcValid: true, validity: FrameWellFormed}
	if errs := ValidateFrame(f); len(errs) != 0 {
		t.Errorf("Clean frame should have no anomalies, got %v", errs)
	}
}

func TestValidateFrame_ReservedIdentifiers(t *testing.T) {
	for _, ident := range []uint16{0x000, 0xFFF} {
		f := &Frame{ident: ident, rw: true, crcValid: true, validity: FrameWellFormed}
		errs := ValidateFrame(f)
		if !hasAnomaly(errs, ANOMALY_RESERVED_IDENT) {
			t.Errorf("Identifier 0x%03X should be flagged as reserved", ident)
		}
	}
}

func TestValidateFrame_AckMissing(t *testing.T) {
	f := &Frame{ident: 0x2B0, rak: true, rw: true, ack: false, crcValid: true, validity: FrameWellFormed}
	if !hasAnomaly(ValidateFrame(f), ANOMALY_ACK_MISSING) {
		t.Error("RAK frame with recessive ack slot should be flagged")
	}

	f.ack = true
	if hasAnomaly(ValidateFrame(f), ANOMALY_ACK_MISSING) {
		t.Error("Acknowledged RAK frame should not be flagged")
	}
}

func TestValidateFrame_HighRecovery(t *testing.T) {
	f := &Frame{ident: 0x2B0, rw: true, crcValid: true, validity: FrameWellFormed,
		recoveredBits: recoveredBitWarning + 1}
	if !hasAnomaly(ValidateFrame(f), ANOMALY_HIGH_RECOVERY) {
		t.Error("Frame above the recovery threshold should be flagged")
	}
}

func TestValidateFrame_EmptyWrite(t *testing.T) {
	f := &Frame{ident: 0x2B0, crcValid: true, validity: FrameWellFormed}
	if !hasAnomaly(ValidateFrame(f), ANOMALY_EMPTY_WRITE) {
		t.Error("Write frame without payload should be flagged")
	}
}

func TestValidateFrame_SkipsBrokenFrames(t *testing.T) {
	f := &Frame{ident: 0x000, validity: FrameFramingError,
		err: &DecodeError{Kind: ErrStuffing, Reason: "test"}}
	if errs := ValidateFrame(f); len(errs) != 0 {
		t.Errorf("Frames that failed to decode are not validated, got %v", errs)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_CountsFrames(t *testing.T) {
	s := NewStatistics()

	valid := &Frame{ident: 0x123, rw: true, crcValid: true, validity: FrameWellFormed}
	s.Update(valid, nil)

	crcBad := &Frame{ident: 0x124, rw: true, crcValid: false, validity: FrameWellFormed,
		err: &DecodeError{Kind: ErrChecksum}}
	s.Update(crcBad, nil)

	truncated := &Frame{ident: 0x125, validity: FrameTruncated,
		err: &DecodeError{Kind: ErrTruncation}}
	s.Update(truncated, nil)

	stuffed := &Frame{validity: FrameFramingError, err: &DecodeError{Kind: ErrStuffing}}
	s.Update(stuffed, nil)

	anomalous := &Frame{ident: 0x126, rak: true, rw: true, crcValid: true, validity: FrameWellFormed}
	s.Update(anomalous, ValidateFrame(anomalous))

	if s.TotalFrames != 5 {
		t.Errorf("TotalFrames = %d, want 5", s.TotalFrames)
	}
	if s.ValidFrames != 1 {
		t.Errorf("ValidFrames = %d, want 1", s.ValidFrames)
	}
	if s.CRCErrors != 1 {
		t.Errorf("CRCErrors = %d, want 1", s.CRCErrors)
	}
	if s.TruncatedFrames != 1 {
		t.Errorf("TruncatedFrames = %d, want 1", s.TruncatedFrames)
	}
	if s.StuffingErrors != 1 {
		t.Errorf("StuffingErrors = %d, want 1", s.StuffingErrors)
	}
	if s.AnomalousFrames != 1 || s.AckMissing != 1 {
		t.Errorf("Anomaly counters wrong: anomalous=%d ackMissing=%d", s.AnomalousFrames, s.AckMissing)
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.Update(&Frame{ident: 0x123, rw: true, crcValid: true, validity: FrameWellFormed}, nil)
	s.Update(&Frame{ident: 0x124, rw: true, validity: FrameWellFormed,
		err: &DecodeError{Kind: ErrChecksum}}, nil)

	out := s.String()
	for _, want := range []string{"Total Frames:", "Valid Frames:", "CRC Errors:", "Frame Rate:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Statistics output missing %q:\n%s", want, out)
		}
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.Update(&Frame{ident: 0x123, rw: true, crcValid: true, validity: FrameWellFormed}, nil)
	s.RecordError(DecodeError{Kind: ErrTiming})
	s.Reset()

	if s.TotalFrames != 0 || s.ValidFrames != 0 || s.StandaloneErrs != 0 {
		t.Error("Reset should zero all counters")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame_WellFormed(t *testing.T) {
	f := &Frame{ident: 0x3C5, ext: true, rak: true, ack: true,
		data: []byte{0xDE, 0xAD}, crcValid: true, validity: FrameWellFormed}
	out := FormatFrame(f, testSampleRate)

	for _, want := range []string{"ID=0x3C5", "EXT+RAK", "crc=ok", "ack", "DE AD"} {
		if !strings.Contains(out, want) {
			t.Errorf("Formatted frame missing %q:\n%s", want, out)
		}
	}
}

func TestFormatFrame_FramingError(t *testing.T) {
	f := &Frame{validity: FrameFramingError,
		err: &DecodeError{Kind: ErrStuffing, Tick: 100, Reason: "run of 5 identical bits without stuff bit"}}
	out := FormatFrame(f, testSampleRate)

	if !strings.Contains(out, "FRAMING-ERROR") || !strings.Contains(out, "stuffing") {
		t.Errorf("Formatted error frame incomplete:\n%s", out)
	}
}

func TestFormatControlFlags(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
		want  string
	}{
		{"write", &Frame{}, "WR"},
		{"read", &Frame{rw: true}, "RD"},
		{"request", &Frame{rtr: true}, "RTR"},
		{"combined", &Frame{ext: true, rak: true, rw: true}, "EXT+RAK+RD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatControlFlags(tt.frame); got != tt.want {
				t.Errorf("FormatControlFlags() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ============================================================
// Frame Record Tests
// ============================================================

func TestFrameRecord_JSONRoundtrip(t *testing.T) {
	f := &Frame{ident: 0x511, rw: true, data: []byte{0x10, 0x20}, crc: 0x1234,
		crcValid: true, ack: true, validity: FrameWellFormed, startTick: 8000}
	rec := NewFrameRecord(f, testSampleRate)

	line, err := rec.EncodeJSONLine()
	if err != nil {
		t.Fatalf("EncodeJSONLine: %v", err)
	}
	if line[len(line)-1] != '\n' {
		t.Error("JSON line should end with a newline")
	}

	var back FrameRecord
	if err := json.Unmarshal(line, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Ident != 0x511 || !back.CRCValid || back.Validity != "WELL-FORMED" {
		t.Errorf("Record did not survive the JSON roundtrip: %+v", back)
	}
	if back.TimeUs != 8000.0 {
		t.Errorf("Start time should be 8000µs at 1MHz, got %g", back.TimeUs)
	}
}

func TestFrameRecord_CBORRoundtrip(t *testing.T) {
	f := &Frame{ident: 0x2AA, rak: true, data: []byte{0xFE}, crc: 0x7777,
		crcValid: false, validity: FrameWellFormed,
		err: &DecodeError{Kind: ErrChecksum, Reason: "mismatch"}}
	rec := NewFrameRecord(f, testSampleRate)

	blob, err := rec.EncodeCBOR()
	if err != nil {
		t.Fatalf("EncodeCBOR: %v", err)
	}

	var back FrameRecord
	if err := cbor.Unmarshal(blob, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Ident != 0x2AA || back.CRCValid || back.Error == "" {
		t.Errorf("Record did not survive the CBOR roundtrip: %+v", back)
	}
}
