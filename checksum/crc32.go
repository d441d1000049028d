/*
NAME
  crc32.go

DESCRIPTION
  CRC-32 (polynomial 0xEDB88320) integrity checksum over float32 payload
  bytes, as published alongside every WorldFrame and verified by both
  transport readers.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package checksum computes the CRC-32 integrity checksum used to detect
// corruption of published height-map payloads across both the shared-memory
// and socket transports.
package checksum

import (
	"math"
	"sync"
)

// Algorithm identifies the checksum scheme recorded alongside a WorldFrame.
// AlgorithmNone means "not computed this frame"; AlgorithmCRC32 identifies
// the exact CRC-32 variant implemented by this package.
const (
	AlgorithmNone  uint32 = 0
	AlgorithmCRC32 uint32 = 1
)

// polynomial is the reversed representation of 0x04C11DB7, matching zlib's
// CRC-32 and the reference implementation's table construction.
const polynomial = 0xEDB88320

var (
	tableOnce sync.Once
	table     [256]uint32
)

func buildTable() {
	for i := uint32(0); i < 256; i++ {
		c := i
		for k := 0; k < 8; k++ {
			if c&1 != 0 {
				c = polynomial ^ (c >> 1)
			} else {
				c = c >> 1
			}
		}
		table[i] = c
	}
}

// Bytes computes the CRC-32 of b directly, using initial register
// 0xFFFFFFFF and final XOR 0xFFFFFFFF.
func Bytes(b []byte) uint32 {
	tableOnce.Do(buildTable)
	crc := uint32(0xFFFFFFFF)
	for _, v := range b {
		crc = table[byte(crc)^v] ^ (crc >> 8)
	}
	return crc ^ 0xFFFFFFFF
}

// Float32s computes the CRC-32 over the raw little-endian bytes of data,
// without allocating an intermediate byte slice.
func Float32s(data []float32) uint32 {
	tableOnce.Do(buildTable)
	crc := uint32(0xFFFFFFFF)
	for _, f := range data {
		bits := math.Float32bits(f)
		crc = table[byte(crc)^byte(bits)] ^ (crc >> 8)
		crc = table[byte(crc)^byte(bits>>8)] ^ (crc >> 8)
		crc = table[byte(crc)^byte(bits>>16)] ^ (crc >> 8)
		crc = table[byte(crc)^byte(bits>>24)] ^ (crc >> 8)
	}
	return crc ^ 0xFFFFFFFF
}
