// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import "fmt"

// Decoder implements the VAN frame grammar state machine. It consumes the
// logical bit stream produced by the line decoder, strips stuff bits, walks
// SOF -> Identifier -> Control -> DataLen -> Data -> Checksum -> EndFields,
// and pushes field, frame and error events to the sink as they complete.
//
// Abandoning a frame never resets the bit clock; the decoder simply resumes
// scanning for the next start-of-frame pattern.
type Decoder struct {
	cfg  Config
	sink EventSink

	state int

	// Start-of-frame pattern detector: the last SOFBits raw bits shift
	// through patDet while sofTicks remembers where each of them began.
	patDet   uint8
	sofTicks [SOFBits]uint64
	sofPos   int
	bitsSeen int

	frame *Frame

	// Accumulator for the field currently being filled.
	acc      uint64
	accBits  int
	accStart uint64

	dataLen int
	dataIdx int

	// Bit stuffing state, active from the first identifier bit through the
	// end of the checksum field.
	stuffRegion bool
	run         int
	runVal      uint8
}

// NewDecoder creates a frame decoder pushing events to sink.
func NewDecoder(cfg Config, sink EventSink) *Decoder {
	return &Decoder{cfg: cfg.withDefaults(), sink: sink, state: stateIdle}
}

// FeedBit processes one decoded logical bit.
func (d *Decoder) FeedBit(b Bit) {
	if d.state == stateIdle {
		d.scanSOF(b)
		return
	}

	if d.stuffRegion {
		if d.run == d.cfg.MaxRun {
			// This slot must carry the complementary stuff bit.
			if b.Value == d.runVal {
				d.abandon(ErrStuffing, b.EndTick,
					fmt.Sprintf("run of %d identical bits without stuff bit", d.cfg.MaxRun+1))
				return
			}
			if b.Validity == BitRecovered {
				d.frame.recoveredBits++
			}
			d.run = 1
			d.runVal = b.Value
			d.frame.stuffBits++
			return
		}
		if d.run > 0 && b.Value == d.runVal {
			d.run++
		} else {
			d.run = 1
			d.runVal = b.Value
		}
	}

	if b.Validity == BitRecovered {
		d.frame.recoveredBits++
		if d.state == stateIdentifier || d.state == stateChecksum {
			// Identifier and checksum are validity-sensitive: a best-guess
			// bit there poisons the whole frame.
			d.abandon(ErrTiming, b.EndTick, "recovered bit in validity-sensitive field")
			return
		}
	}

	d.accumulate(b)
}

// FeedResync processes a resynchronization event from the line decoder.
func (d *Decoder) FeedResync(rs Resync) {
	if d.state == stateIdle {
		if rs.Kind == ResyncGlitch {
			d.sink.OnError(DecodeError{Kind: ErrTiming, Tick: rs.Tick,
				Reason: "bit width out of tolerance before frame start"})
		}
		// Idle gaps between frames are normal bus behavior.
		d.patDet = 0
		d.bitsSeen = 0
		return
	}
	switch rs.Kind {
	case ResyncIdleGap:
		d.abandon(ErrFraming, rs.Tick, "bus went idle mid-frame")
	default:
		d.abandon(ErrTiming, rs.Tick, "lost bit lock")
	}
}

// Flush finalizes a frame cut off by end of stream. Partial frames are
// emitted as truncated rather than dropped, so every observed start-of-frame
// is accounted for.
func (d *Decoder) Flush(tick uint64) {
	if d.frame == nil {
		return
	}
	f := d.frame
	f.validity = FrameTruncated
	f.err = &DecodeError{Kind: ErrTruncation, Tick: tick, Reason: "stream ended mid-frame"}
	f.endTick = tick
	d.reset()
	d.sink.OnFrame(f)
}

// scanSOF shifts raw bits through the pattern detector until the
// start-of-frame byte lines up.
func (d *Decoder) scanSOF(b Bit) {
	d.sofTicks[d.sofPos] = b.StartTick
	d.sofPos = (d.sofPos + 1) % SOFBits
	d.patDet = d.patDet<<1 | b.Value
	d.bitsSeen++
	if d.bitsSeen < SOFBits || d.patDet != SOFPattern {
		return
	}

	start := d.sofTicks[d.sofPos] // oldest bit in the window
	d.frame = &Frame{startTick: start, validity: FrameWellFormed}
	d.sink.OnField(Field{Kind: FieldSOF, Value: SOFPattern, Bits: SOFBits,
		StartTick: start, EndTick: b.EndTick})

	d.state = stateIdentifier
	d.acc = 0
	d.accBits = 0
	d.stuffRegion = true
	d.run = 0
	d.runVal = 0
}

// accumulate folds one logical (destuffed) bit into the current field.
func (d *Decoder) accumulate(b Bit) {
	if d.accBits == 0 {
		d.accStart = b.StartTick
	}
	d.acc = d.acc<<1 | uint64(b.Value)
	d.accBits++

	switch d.state {
	case stateIdentifier, stateControl, stateDataLen, stateData:
		d.frame.covered = append(d.frame.covered, b.Value)
	}

	switch d.state {
	case stateIdentifier:
		if d.accBits == IdentBits {
			d.frame.ident = uint16(d.acc)
			d.emitField(FieldIdentifier, 0, b.EndTick)
			d.state = stateControl
		}

	case stateControl:
		if d.accBits == ControlBits {
			d.frame.ext = d.acc&0x8 != 0
			d.frame.rak = d.acc&0x4 != 0
			d.frame.rw = d.acc&0x2 != 0
			d.frame.rtr = d.acc&0x1 != 0
			d.emitField(FieldControl, 0, b.EndTick)
			if d.frame.rtr {
				d.state = stateChecksum
			} else {
				d.state = stateDataLen
			}
		}

	case stateDataLen:
		if d.accBits == DataLenBits {
			if d.acc > MaxPayloadSize {
				d.abandon(ErrFraming, b.EndTick,
					fmt.Sprintf("declared payload length %d exceeds maximum %d", d.acc, MaxPayloadSize))
				return
			}
			d.dataLen = int(d.acc)
			d.dataIdx = 0
			d.emitField(FieldDataLength, 0, b.EndTick)
			if d.dataLen == 0 {
				d.state = stateChecksum
			} else {
				d.state = stateData
			}
		}

	case stateData:
		if d.accBits == DataByteBits {
			d.frame.data = append(d.frame.data, byte(d.acc))
			d.emitField(FieldDataByte, d.dataIdx, b.EndTick)
			d.dataIdx++
			if d.dataIdx == d.dataLen {
				d.state = stateChecksum
			}
		}

	case stateChecksum:
		if d.accBits == ChecksumBits {
			d.frame.crc = uint16(d.acc)
			d.frame.crcValid = VerifyCRC(d.frame.covered, d.frame.crc)
			if !d.frame.crcValid {
				d.frame.err = &DecodeError{Kind: ErrChecksum, Tick: b.EndTick,
					Reason: fmt.Sprintf("transmitted 0x%04X, computed 0x%04X",
						d.frame.crc, ComputeCRC(d.frame.covered))}
			}
			d.emitField(FieldChecksum, 0, b.EndTick)
			d.stuffRegion = false
			d.state = stateEOD
		}

	case stateEOD:
		if b.Value != 0 {
			d.abandon(ErrFraming, b.EndTick, "end-of-data bits must be dominant")
			return
		}
		if d.accBits == EODBits {
			d.emitField(FieldEOD, 0, b.EndTick)
			d.state = stateAck
		}

	case stateAck:
		if d.accBits == 1 {
			if b.Value != 1 {
				d.abandon(ErrFraming, b.EndTick, "ack delimiter must be recessive")
				return
			}
		} else if d.accBits == 2 {
			d.frame.ack = b.Value == 0
			d.emitField(FieldAck, 0, b.EndTick)
			d.state = stateEOF
		}

	case stateEOF:
		if b.Value != 1 {
			d.abandon(ErrFraming, b.EndTick, "end-of-frame bits must be recessive")
			return
		}
		if d.accBits == EOFBits {
			d.emitField(FieldEOF, 0, b.EndTick)
			d.finalize(b.EndTick)
		}
	}
}

func (d *Decoder) emitField(kind FieldKind, index int, endTick uint64) {
	d.sink.OnField(Field{Kind: kind, Value: d.acc, Index: index, Bits: d.accBits,
		StartTick: d.accStart, EndTick: endTick})
	d.acc = 0
	d.accBits = 0
}

// abandon emits the in-progress frame as a framing error and resumes SOF
// scanning. The bit clock is untouched.
func (d *Decoder) abandon(kind ErrorKind, tick uint64, reason string) {
	f := d.frame
	f.validity = FrameFramingError
	f.err = &DecodeError{Kind: kind, Tick: tick, Reason: reason}
	f.endTick = tick
	d.reset()
	d.sink.OnFrame(f)
}

func (d *Decoder) finalize(tick uint64) {
	f := d.frame
	f.endTick = tick
	d.reset()
	d.sink.OnFrame(f)
}

func (d *Decoder) reset() {
	d.frame = nil
	d.state = stateIdle
	d.patDet = 0
	d.bitsSeen = 0
	d.sofPos = 0
	d.acc = 0
	d.accBits = 0
	d.stuffRegion = false
	d.run = 0
	d.runVal = 0
}
