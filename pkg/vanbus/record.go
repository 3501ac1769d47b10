// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FrameRecord is the serializable view of a decoded frame, for machine
// consumers of the decode command and for capture replay archives.
type FrameRecord struct {
	TimeUs    float64 `json:"time_us" cbor:"1,keyasint"`
	Ident     uint16  `json:"ident" cbor:"2,keyasint"`
	Ext       bool    `json:"ext" cbor:"3,keyasint"`
	Rak       bool    `json:"rak" cbor:"4,keyasint"`
	RW        bool    `json:"rw" cbor:"5,keyasint"`
	RTR       bool    `json:"rtr" cbor:"6,keyasint"`
	Data      []byte  `json:"data,omitempty" cbor:"7,keyasint,omitempty"`
	CRC       uint16  `json:"crc" cbor:"8,keyasint"`
	CRCValid  bool    `json:"crc_valid" cbor:"9,keyasint"`
	Ack       bool    `json:"ack" cbor:"10,keyasint"`
	Validity  string  `json:"validity" cbor:"11,keyasint"`
	Error     string  `json:"error,omitempty" cbor:"12,keyasint,omitempty"`
	Recovered int     `json:"recovered_bits,omitempty" cbor:"13,keyasint,omitempty"`
}

// NewFrameRecord flattens a frame for serialization. The sample rate turns
// the start tick into microseconds.
func NewFrameRecord(f *Frame, sampleRate int) FrameRecord {
	r := FrameRecord{
		TimeUs:    tickMicros(f.StartTick(), sampleRate),
		Ident:     f.Ident(),
		Ext:       f.Ext(),
		Rak:       f.Rak(),
		RW:        f.RW(),
		RTR:       f.RTR(),
		Data:      f.Data(),
		CRC:       f.CRC(),
		CRCValid:  f.CRCValid(),
		Ack:       f.Ack(),
		Validity:  f.Validity().String(),
		Recovered: f.RecoveredBits(),
	}
	if err := f.Err(); err != nil {
		r.Error = err.Error()
	}
	return r
}

// EncodeJSONLine renders the record as a single JSON line.
func (r FrameRecord) EncodeJSONLine() ([]byte, error) {
	out, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode frame record: %w", err)
	}
	return append(out, '\n'), nil
}

// EncodeCBOR renders the record in CBOR with integer keys, the compact form
// used by downstream archive tooling.
func (r FrameRecord) EncodeCBOR() ([]byte, error) {
	out, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode frame record: %w", err)
	}
	return out, nil
}
