// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import (
	"bytes"
	"context"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// testSampleRate gives 8 samples per bit cell at the nominal bit rate
const testSampleRate = 1_000_000

func testConfig() Config {
	return Config{SampleRate: testSampleRate}
}

// captureSink records every event the pipeline emits, in order
type captureSink struct {
	fields []Field
	frames []*Frame
	errs   []DecodeError
}

func (s *captureSink) OnField(f Field)       { s.fields = append(s.fields, f) }
func (s *captureSink) OnFrame(f *Frame)      { s.frames = append(s.frames, f) }
func (s *captureSink) OnError(e DecodeError) { s.errs = append(s.errs, e) }

func (s *captureSink) fieldKinds() []FieldKind {
	kinds := make([]FieldKind, len(s.fields))
	for i, f := range s.fields {
		kinds[i] = f.Kind
	}
	return kinds
}

func decodeSamples(t *testing.T, cfg Config, samples []Sample) *captureSink {
	t.Helper()
	sink := &captureSink{}
	p, err := NewPipeline(cfg, NewSliceSource(samples), sink)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return sink
}

// concatSamples joins two captures, shifting the second one's ticks past the
// end of the first. Both captures must have dense ticks starting at zero.
func concatSamples(a, b []Sample) []Sample {
	off := uint64(len(a))
	out := make([]Sample, 0, len(a)+len(b))
	out = append(out, a...)
	for _, s := range b {
		s.Tick += off
		out = append(out, s)
	}
	return out
}

func encodeTestFrame(t *testing.T, spec FrameSpec) []Sample {
	t.Helper()
	samples, err := NewEncoder(testConfig()).EncodeFrame(spec)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return samples
}

// ============================================================
// CRC Tests
// ============================================================

func TestComputeCRC_Empty(t *testing.T) {
	if crc := ComputeCRC(nil); crc != crcInitial {
		t.Errorf("CRC of empty bit sequence should be initial value, got 0x%04X", crc)
	}
}

func TestComputeCRC_Deterministic(t *testing.T) {
	bits := []uint8{1, 0, 1, 1, 0, 0, 1, 0, 1, 1, 1, 0}
	if ComputeCRC(bits) != ComputeCRC(bits) {
		t.Error("CRC should be deterministic")
	}
}

func TestComputeCRC_DetectsSingleBitFlip(t *testing.T) {
	bits := make([]uint8, 32)
	for i := range bits {
		bits[i] = uint8((i * 7) % 2)
	}
	base := ComputeCRC(bits)
	for i := range bits {
		flipped := append([]uint8{}, bits...)
		flipped[i] ^= 1
		if ComputeCRC(flipped) == base {
			t.Errorf("Flipping bit %d did not change the CRC", i)
		}
	}
}

func TestComputeCRC_StaysInRange(t *testing.T) {
	bits := []uint8{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	if crc := ComputeCRC(bits); crc&^uint16(crcMask) != 0 {
		t.Errorf("CRC exceeds 15 bits: 0x%04X", crc)
	}
}

// ============================================================
// End-to-End Decode Tests
// ============================================================

func TestDecode_SimpleFrame(t *testing.T) {
	samples := encodeTestFrame(t, FrameSpec{Ident: 0x100, Data: []byte{0xAB}})
	sink := decodeSamples(t, testConfig(), samples)

	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Validity() != FrameWellFormed {
		t.Fatalf("Expected well-formed frame, got %s", f.Validity())
	}
	if f.Ident() != 0x100 {
		t.Errorf("Expected identifier 0x100, got 0x%03X", f.Ident())
	}
	if !bytes.Equal(f.Data(), []byte{0xAB}) {
		t.Errorf("Expected payload [AB], got % X", f.Data())
	}
	if !f.CRCValid() {
		t.Errorf("Expected valid CRC, transmitted 0x%04X", f.CRC())
	}
	if f.Ack() {
		t.Error("Ack slot should be recessive")
	}
	if f.RecoveredBits() != 0 {
		t.Errorf("Clean capture should need no recovered bits, got %d", f.RecoveredBits())
	}
	if err := f.Err(); err != nil {
		t.Errorf("Unexpected frame error: %v", err)
	}
	if len(sink.errs) != 0 {
		t.Errorf("Unexpected standalone errors: %v", sink.errs)
	}

	want := []FieldKind{FieldSOF, FieldIdentifier, FieldControl, FieldDataLength,
		FieldDataByte, FieldChecksum, FieldEOD, FieldAck, FieldEOF}
	got := sink.fieldKinds()
	if len(got) != len(want) {
		t.Fatalf("Expected %d field events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Field %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDecode_ControlFlags(t *testing.T) {
	samples := encodeTestFrame(t, FrameSpec{
		Ident: 0x53A, Ext: true, Rak: true, RW: true,
		Data: []byte{0x01, 0x02, 0x03}, AckSlot: true,
	})
	sink := decodeSamples(t, testConfig(), samples)

	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Validity() != FrameWellFormed || !f.CRCValid() {
		t.Fatalf("Frame did not decode cleanly: %s", f.Validity())
	}
	if !f.Ext() || !f.Rak() || !f.RW() || f.RTR() {
		t.Errorf("Control flags wrong: ext=%v rak=%v rw=%v rtr=%v", f.Ext(), f.Rak(), f.RW(), f.RTR())
	}
	if !f.Ack() {
		t.Error("Ack slot should be dominant")
	}
	if !bytes.Equal(f.Data(), []byte{0x01, 0x02, 0x03}) {
		t.Errorf("Payload mismatch: % X", f.Data())
	}
}

func TestDecode_RequestFrame(t *testing.T) {
	samples := encodeTestFrame(t, FrameSpec{Ident: 0x7D2, RTR: true, AckSlot: true})
	sink := decodeSamples(t, testConfig(), samples)

	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Validity() != FrameWellFormed || !f.CRCValid() {
		t.Fatalf("Request frame did not decode cleanly: %s", f.Validity())
	}
	if !f.RTR() {
		t.Error("RTR flag should be set")
	}
	if len(f.Data()) != 0 {
		t.Errorf("Request frame should carry no payload, got % X", f.Data())
	}
	for _, kind := range sink.fieldKinds() {
		if kind == FieldDataLength || kind == FieldDataByte {
			t.Errorf("Request frame emitted unexpected field %s", kind)
		}
	}
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	spec := FrameSpec{Ident: 0x4C1, Data: []byte{0xDE, 0xAD}}
	good := decodeSamples(t, testConfig(), encodeTestFrame(t, spec))
	if len(good.frames) != 1 || !good.frames[0].CRCValid() {
		t.Fatal("Baseline frame did not decode cleanly")
	}

	bad := good.frames[0].CRC() ^ 0x0001
	spec.CRC = &bad
	sink := decodeSamples(t, testConfig(), encodeTestFrame(t, spec))

	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Validity() != FrameWellFormed {
		t.Fatalf("Checksum mismatch must not abandon the frame, got %s", f.Validity())
	}
	if f.CRCValid() {
		t.Error("CRC should be flagged invalid")
	}
	if err := f.Err(); err == nil || err.Kind != ErrChecksum {
		t.Errorf("Expected checksum error on frame, got %v", err)
	}
	if !bytes.Equal(f.Data(), []byte{0xDE, 0xAD}) {
		t.Errorf("Payload should survive a checksum mismatch, got % X", f.Data())
	}
}

func TestDecode_Truncation(t *testing.T) {
	spec := FrameSpec{Ident: 0x2A5, Data: []byte{0x11, 0x22}}
	samples := encodeTestFrame(t, spec)

	// Find where the identifier field ends, then cut the capture two bit
	// cells later, mid-control.
	full := decodeSamples(t, testConfig(), samples)
	var identEnd uint64
	for _, fld := range full.fields {
		if fld.Kind == FieldIdentifier {
			identEnd = fld.EndTick
		}
	}
	if identEnd == 0 {
		t.Fatal("Baseline decode emitted no identifier field")
	}

	cut := identEnd + 16
	if cut >= uint64(len(samples)) {
		t.Fatalf("Cut point %d outside capture of %d samples", cut, len(samples))
	}
	sink := decodeSamples(t, testConfig(), samples[:cut])

	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 truncated frame, got %d", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Validity() != FrameTruncated {
		t.Fatalf("Expected truncated frame, got %s", f.Validity())
	}
	if err := f.Err(); err == nil || err.Kind != ErrTruncation {
		t.Errorf("Expected truncation error, got %v", err)
	}
	if f.Ident() != 0x2A5 {
		t.Errorf("Completed identifier should survive truncation, got 0x%03X", f.Ident())
	}
	if len(f.Data()) != 0 {
		t.Errorf("Truncated frame should have no payload, got % X", f.Data())
	}
}

func TestDecode_StuffingViolation(t *testing.T) {
	// Hand-built physical stream: valid SOF, then five identical identifier
	// bits where the fifth slot should have carried a stuff bit.
	bits := appendValue(nil, SOFPattern, SOFBits)
	bits = append(bits, 1, 1, 1, 1, 1, 0, 0)
	samples := NewEncoder(testConfig()).Modulate(bits, 4, 4)

	sink := decodeSamples(t, testConfig(), samples)
	if len(sink.frames) != 1 {
		t.Fatalf("Expected exactly 1 error frame, got %d", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Validity() != FrameFramingError {
		t.Errorf("Expected framing error, got %s", f.Validity())
	}
	if err := f.Err(); err == nil || err.Kind != ErrStuffing {
		t.Errorf("Expected stuffing violation, got %v", err)
	}
	if len(sink.errs) != 0 {
		t.Errorf("Violation must not cascade into standalone errors: %v", sink.errs)
	}
}

func TestDecode_BackToBackFrames(t *testing.T) {
	enc := NewEncoder(testConfig())
	bitsA, err := enc.BuildFrameBits(FrameSpec{Ident: 0x123, Data: []byte{0x01}})
	if err != nil {
		t.Fatalf("BuildFrameBits: %v", err)
	}
	bitsB, err := enc.BuildFrameBits(FrameSpec{Ident: 0x456, Data: []byte{0x02, 0x03}})
	if err != nil {
		t.Fatalf("BuildFrameBits: %v", err)
	}
	samples := concatSamples(enc.Modulate(bitsA, 4, 6), enc.Modulate(bitsB, 2, 4))

	sink := decodeSamples(t, testConfig(), samples)
	if len(sink.frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(sink.frames))
	}
	if sink.frames[0].Ident() != 0x123 || sink.frames[1].Ident() != 0x456 {
		t.Errorf("Identifiers wrong: 0x%03X, 0x%03X", sink.frames[0].Ident(), sink.frames[1].Ident())
	}
	for i, f := range sink.frames {
		if f.Validity() != FrameWellFormed || !f.CRCValid() {
			t.Errorf("Frame %d did not decode cleanly: %s", i, f.Validity())
		}
	}
	if len(sink.errs) != 0 {
		t.Errorf("Inter-frame idle gap should be silent, got errors: %v", sink.errs)
	}
}

func TestDecode_Idempotence(t *testing.T) {
	enc := NewEncoder(testConfig())
	bitsA, _ := enc.BuildFrameBits(FrameSpec{Ident: 0x3F0, Data: []byte{0xFF, 0x00, 0xFF}})
	bitsB, _ := enc.BuildFrameBits(FrameSpec{Ident: 0x051, RTR: true})
	samples := concatSamples(enc.Modulate(bitsA, 4, 8), enc.Modulate(bitsB, 0, 4))

	first := decodeSamples(t, testConfig(), samples)
	second := decodeSamples(t, testConfig(), samples)

	if len(first.frames) != len(second.frames) {
		t.Fatalf("Frame counts differ: %d vs %d", len(first.frames), len(second.frames))
	}
	for i := range first.frames {
		a, b := first.frames[i], second.frames[i]
		if a.Ident() != b.Ident() || !bytes.Equal(a.Data(), b.Data()) ||
			a.CRCValid() != b.CRCValid() || a.Validity() != b.Validity() ||
			a.StartTick() != b.StartTick() || a.EndTick() != b.EndTick() {
			t.Errorf("Frame %d differs between identical decodes", i)
		}
	}
	if len(first.fields) != len(second.fields) {
		t.Errorf("Field counts differ: %d vs %d", len(first.fields), len(second.fields))
	}
}

func TestDecode_IdleOnlyCapture(t *testing.T) {
	samples := make([]Sample, 256)
	for i := range samples {
		samples[i] = Sample{Tick: uint64(i), Level: true}
	}
	sink := decodeSamples(t, testConfig(), samples)
	if len(sink.frames) != 0 || len(sink.errs) != 0 {
		t.Errorf("Idle capture should emit nothing, got %d frames, %d errors",
			len(sink.frames), len(sink.errs))
	}
}

func TestDecode_EmptyCapture(t *testing.T) {
	sink := decodeSamples(t, testConfig(), nil)
	if len(sink.frames) != 0 || len(sink.fields) != 0 || len(sink.errs) != 0 {
		t.Error("Empty capture should emit nothing")
	}
}

func TestDecode_MaxPayload(t *testing.T) {
	data := make([]byte, MaxPayloadSize)
	for i := range data {
		data[i] = byte(i * 9)
	}
	samples := encodeTestFrame(t, FrameSpec{Ident: 0x6B8, Data: data})
	sink := decodeSamples(t, testConfig(), samples)

	if len(sink.frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sink.frames))
	}
	f := sink.frames[0]
	if f.Validity() != FrameWellFormed || !f.CRCValid() {
		t.Fatalf("Max payload frame did not decode cleanly: %s", f.Validity())
	}
	if !bytes.Equal(f.Data(), data) {
		t.Error("Max payload did not survive the roundtrip")
	}
}

// ============================================================
// Config Tests
// ============================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"minimal valid", Config{SampleRate: testSampleRate}, false},
		{"missing sample rate", Config{}, true},
		{"negative sample rate", Config{SampleRate: -1}, true},
		{"sample rate too low for bit rate", Config{SampleRate: 100_000, BitRate: 125000}, true},
		{"tolerance too high", Config{SampleRate: testSampleRate, Tolerance: 0.6}, true},
		{"alpha above one", Config{SampleRate: testSampleRate, EMAAlpha: 1.5}, true},
		{"negative glitch budget", Config{SampleRate: testSampleRate, GlitchBudget: -1}, true},
		{"explicit full config", Config{SampleRate: 2_000_000, BitRate: 125000,
			Tolerance: 0.2, EMAAlpha: 0.1, MaxRun: 4, GlitchBudget: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{SampleRate: testSampleRate}.withDefaults()
	if cfg.BitRate != DefaultBitRate {
		t.Errorf("Default bit rate: got %d", cfg.BitRate)
	}
	if cfg.Tolerance != DefaultTolerance || cfg.EMAAlpha != DefaultEMAAlpha {
		t.Errorf("Default timing parameters wrong: tol=%g alpha=%g", cfg.Tolerance, cfg.EMAAlpha)
	}
	if cfg.MaxRun != DefaultMaxRun || cfg.GlitchBudget != DefaultGlitchBudget {
		t.Errorf("Default run parameters wrong: maxRun=%d budget=%d", cfg.MaxRun, cfg.GlitchBudget)
	}
}
