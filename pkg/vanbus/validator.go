// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	ANOMALY_RESERVED_IDENT AnomalyType = iota
	ANOMALY_ACK_MISSING
	ANOMALY_HIGH_RECOVERY
	ANOMALY_EMPTY_WRITE
	ANOMALY_CRC_ERROR
	ANOMALY_DECODE_ERROR
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// recoveredBitWarning is the per-frame recovered-bit count above which a
// frame is flagged as suspect even though every bit was individually
// accepted.
const recoveredBitWarning = 2

// ValidateFrame checks a well-formed frame for protocol-level anomalies the
// decoder itself does not reject. Returns a slice of validation errors
// (empty if the frame is clean). Frames that did not decode cleanly are not
// validated; their decode error already tells the story.
func ValidateFrame(f *Frame) []ValidationError {
	errors := []ValidationError{}
	if f.Validity() != FrameWellFormed {
		return errors
	}

	if f.Ident() == 0x000 || f.Ident() == 0xFFF {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_RESERVED_IDENT,
			Message: fmt.Sprintf("Reserved identifier 0x%03X", f.Ident()),
			Details: map[string]interface{}{"ident": f.Ident()},
		})
	}

	// A frame that asked for an in-frame reply but saw a recessive ack slot
	// went unanswered.
	if f.Rak() && !f.Ack() {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_ACK_MISSING,
			Message: fmt.Sprintf("Frame 0x%03X requested acknowledgement but ack slot is recessive", f.Ident()),
			Details: map[string]interface{}{"ident": f.Ident()},
		})
	}

	if f.RecoveredBits() > recoveredBitWarning {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_HIGH_RECOVERY,
			Message: fmt.Sprintf("Frame 0x%03X needed %d recovered bits (max %d before suspect)", f.Ident(), f.RecoveredBits(), recoveredBitWarning),
			Details: map[string]interface{}{"ident": f.Ident(), "recovered": f.RecoveredBits(), "max": recoveredBitWarning},
		})
	}

	// A write with nothing to write is syntactically legal but usually a
	// transmitter bug.
	if !f.RTR() && !f.RW() && len(f.Data()) == 0 {
		errors = append(errors, ValidationError{
			Type:    ANOMALY_EMPTY_WRITE,
			Message: fmt.Sprintf("Write frame 0x%03X carries no payload", f.Ident()),
			Details: map[string]interface{}{"ident": f.Ident()},
		})
	}

	return errors
}
