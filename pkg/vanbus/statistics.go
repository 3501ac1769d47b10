// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

import (
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	CRCErrors       uint64
	StuffingErrors  uint64
	TimingErrors    uint64
	FramingErrors   uint64
	TruncatedFrames uint64
	AnomalousFrames uint64
	AckMissing      uint64
	ReservedIdents  uint64
	HighRecovery    uint64
	EmptyWrites     uint64
	RecoveredBits   uint64
	StuffBits       uint64
	StandaloneErrs  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a decoded frame and its validation
// errors
func (s *Statistics) Update(frame *Frame, validationErrors []ValidationError) {
	s.TotalFrames++
	s.RecoveredBits += uint64(frame.RecoveredBits())
	s.StuffBits += uint64(frame.StuffBits())

	switch frame.Validity() {
	case FrameTruncated:
		s.TruncatedFrames++
		return
	case FrameFramingError:
		if err := frame.Err(); err != nil {
			switch err.Kind {
			case ErrStuffing:
				s.StuffingErrors++
			case ErrTiming:
				s.TimingErrors++
			default:
				s.FramingErrors++
			}
		} else {
			s.FramingErrors++
		}
		return
	}

	// Well-formed from here on. A checksum mismatch keeps the frame but
	// counts against the bus.
	if !frame.CRCValid() {
		s.CRCErrors++
	}

	if len(validationErrors) > 0 {
		s.AnomalousFrames++
		for _, err := range validationErrors {
			switch err.Type {
			case ANOMALY_ACK_MISSING:
				s.AckMissing++
			case ANOMALY_RESERVED_IDENT:
				s.ReservedIdents++
			case ANOMALY_HIGH_RECOVERY:
				s.HighRecovery++
			case ANOMALY_EMPTY_WRITE:
				s.EmptyWrites++
			}
		}
	} else if frame.CRCValid() {
		s.ValidFrames++
	}

	s.LastUpdateTime = time.Now()
}

// RecordError counts a standalone decode error raised outside any frame
func (s *Statistics) RecordError(e DecodeError) {
	s.StandaloneErrs++
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		errorCount := s.CRCErrors + s.StuffingErrors + s.TimingErrors +
			s.FramingErrors + s.TruncatedFrames + s.AnomalousFrames + s.StandaloneErrs
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, crcPercent, framingPercent, anomalousPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalFrames)
		framingPercent = float64(s.StuffingErrors+s.TimingErrors+s.FramingErrors) * 100.0 / float64(s.TotalFrames)
		anomalousPercent = float64(s.AnomalousFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.StuffingErrors+s.TimingErrors+s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.StuffingErrors+s.TimingErrors+s.FramingErrors, framingPercent)
		if s.StuffingErrors > 0 {
			result += fmt.Sprintf("  Stuffing:         %5d\n", s.StuffingErrors)
		}
		if s.TimingErrors > 0 {
			result += fmt.Sprintf("  Timing:           %5d\n", s.TimingErrors)
		}
		if s.FramingErrors > 0 {
			result += fmt.Sprintf("  Grammar:          %5d\n", s.FramingErrors)
		}
	}
	if s.TruncatedFrames > 0 {
		result += fmt.Sprintf("Truncated:       %8d\n", s.TruncatedFrames)
	}
	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous:       %8d (%.1f%%)\n", s.AnomalousFrames, anomalousPercent)
		if s.AckMissing > 0 {
			result += fmt.Sprintf("  Ack Missing:      %5d\n", s.AckMissing)
		}
		if s.ReservedIdents > 0 {
			result += fmt.Sprintf("  Reserved Ident:   %5d\n", s.ReservedIdents)
		}
		if s.HighRecovery > 0 {
			result += fmt.Sprintf("  High Recovery:    %5d\n", s.HighRecovery)
		}
		if s.EmptyWrites > 0 {
			result += fmt.Sprintf("  Empty Writes:     %5d\n", s.EmptyWrites)
		}
	}
	if s.StandaloneErrs > 0 {
		result += fmt.Sprintf("Bus Glitches:    %8d\n", s.StandaloneErrs)
	}
	if s.RecoveredBits > 0 {
		result += fmt.Sprintf("Recovered Bits:  %8d\n", s.RecoveredBits)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	*s = Statistics{StartTime: now, LastUpdateTime: now}
}
