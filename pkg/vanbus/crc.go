// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package vanbus

// ComputeCRC computes the CRC-15/VAN checksum over a destuffed logical bit
// sequence (identifier through end of data), most significant bit first.
// Pure function: no state is retained between invocations.
func ComputeCRC(bits []uint8) uint16 {
	crc := uint16(crcInitial)
	for _, b := range bits {
		top := (crc&crcTopBit != 0) != (b&1 != 0)
		crc = (crc << 1) & crcMask
		if top {
			crc ^= crcPolynomial
		}
	}
	return crc
}

// VerifyCRC recomputes the checksum over the covered bits and compares it
// against the transmitted value.
func VerifyCRC(bits []uint8, transmitted uint16) bool {
	return ComputeCRC(bits) == transmitted&crcMask
}
