// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import "testing"

// ============================================================
// Frame Builder Tests
// ============================================================

func TestBuildFrameBits_RejectsBadSpecs(t *testing.T) {
	enc := NewEncoder(testConfig())

	tests := []struct {
		name string
		spec FrameSpec
	}{
		{"identifier too wide", FrameSpec{Ident: 0x1000}},
		{"request with payload", FrameSpec{Ident: 0x100, RTR: true, Data: []byte{1}}},
		{"payload too long", FrameSpec{Ident: 0x100, Data: make([]byte, MaxPayloadSize+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.BuildFrameBits(tt.spec); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestBuildFrameBits_StartsWithSOF(t *testing.T) {
	enc := NewEncoder(testConfig())
	bits, err := enc.BuildFrameBits(FrameSpec{Ident: 0x321, Data: []byte{0x42}})
	if err != nil {
		t.Fatalf("BuildFrameBits: %v", err)
	}
	want := appendValue(nil, SOFPattern, SOFBits)
	for i, b := range want {
		if bits[i] != b {
			t.Fatalf("Bit %d of start-of-frame wrong: got %d, want %d", i, bits[i], b)
		}
	}
}

func TestBuildFrameBits_StuffedRegionHasNoLongRuns(t *testing.T) {
	enc := NewEncoder(testConfig())

	// All-ones identifier and payload force maximal stuffing.
	bits, err := enc.BuildFrameBits(FrameSpec{Ident: 0xFFF, Data: []byte{0xFF, 0xFF, 0x00, 0xFF}})
	if err != nil {
		t.Fatalf("BuildFrameBits: %v", err)
	}

	// The stuffed region runs from the end of SOF to the start of the
	// trailing fields (EOD, ack delimiter and slot, EOF).
	trailer := EODBits + 2 + EOFBits
	region := bits[SOFBits : len(bits)-trailer]

	run := 0
	var runVal uint8
	for i, b := range region {
		if i > 0 && b == runVal {
			run++
		} else {
			run = 1
			runVal = b
		}
		if run > DefaultMaxRun {
			t.Fatalf("Run of %d identical bits at offset %d of stuffed region", run, i)
		}
	}
}

func TestBuildFrameBits_Deterministic(t *testing.T) {
	enc := NewEncoder(testConfig())
	spec := FrameSpec{Ident: 0x5A5, Ext: true, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}}

	a, err := enc.BuildFrameBits(spec)
	if err != nil {
		t.Fatalf("BuildFrameBits: %v", err)
	}
	b, err := enc.BuildFrameBits(spec)
	if err != nil {
		t.Fatalf("BuildFrameBits: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("Length differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Bit %d differs between identical builds", i)
		}
	}
}

// ============================================================
// Modulation Tests
// ============================================================

func TestModulate_SampleLayout(t *testing.T) {
	enc := NewEncoder(testConfig()) // 8 samples per bit cell
	bits := []uint8{1, 0}
	samples := enc.Modulate(bits, 1, 1)

	wantLen := (len(bits) + 2) * 8
	if len(samples) != wantLen {
		t.Fatalf("Expected %d samples, got %d", wantLen, len(samples))
	}

	// Lead-in idle is recessive high.
	for i := 0; i < 8; i++ {
		if !samples[i].Level {
			t.Fatalf("Lead-in sample %d should be high", i)
		}
	}
	// Bit 1: high then low.
	for i := 8; i < 12; i++ {
		if !samples[i].Level {
			t.Errorf("Sample %d of a one cell should be high", i)
		}
	}
	for i := 12; i < 16; i++ {
		if samples[i].Level {
			t.Errorf("Sample %d of a one cell should be low", i)
		}
	}
	// Bit 0: low then high.
	for i := 16; i < 20; i++ {
		if samples[i].Level {
			t.Errorf("Sample %d of a zero cell should be low", i)
		}
	}
	for i := 20; i < 24; i++ {
		if !samples[i].Level {
			t.Errorf("Sample %d of a zero cell should be high", i)
		}
	}

	// Ticks are dense from zero.
	for i, s := range samples {
		if s.Tick != uint64(i) {
			t.Fatalf("Sample %d has tick %d", i, s.Tick)
		}
	}
}

func TestEncodeFrame_RoundtripsThroughDecoder(t *testing.T) {
	specs := []FrameSpec{
		{Ident: 0x000, Data: []byte{0x00}},
		{Ident: 0xFFF, Data: []byte{0xFF}},
		{Ident: 0x7FF, RTR: true},
		{Ident: 0x155, Ext: true, Rak: true, RW: true, Data: []byte{0xAA, 0x55}, AckSlot: true},
	}

	for _, spec := range specs {
		samples := encodeTestFrame(t, spec)
		sink := decodeSamples(t, testConfig(), samples)
		if len(sink.frames) != 1 {
			t.Fatalf("Spec %+v: expected 1 frame, got %d", spec, len(sink.frames))
		}
		f := sink.frames[0]
		if f.Validity() != FrameWellFormed || !f.CRCValid() {
			t.Errorf("Spec %+v did not roundtrip cleanly: %s", spec, f.Validity())
		}
		if f.Ident() != spec.Ident {
			t.Errorf("Identifier 0x%03X came back as 0x%03X", spec.Ident, f.Ident())
		}
	}
}
