//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package hashlayout implements the LPSI protocol's two-layer hashing
// scheme: outer cuckoo hashing on the Receiver paired with outer
// 3-way simple hashing on the Sender, and inner cuckoo hashing on the
// Sender paired with inner nh-way simple probing on the Receiver.
package hashlayout

import (
	"crypto/sha256"
	"encoding/binary"
)

// Outer and inner hash-function index ranges. Index ranges are
// disjoint so the outer and inner layers never reuse the same seed.
const (
	OuterIndexBase = 0
	InnerIndexBase = 10
)

// itemFromBytes compresses an arbitrary byte string into a 128-bit
// item: the high and low 64 bits of SHA-256(bytes).
func itemFromBytes(data []byte) (high, low uint64) {
	sum := sha256.Sum256(data)
	high = binary.BigEndian.Uint64(sum[0:8])
	low = binary.BigEndian.Uint64(sum[8:16])
	return
}

// splitMix64 is the standard SplitMix64 finalizer, used here purely
// as a bit mixer (not as a PRNG) to fold a seeded item into a bucket
// index.
func splitMix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x = x ^ (x >> 31)
	return x
}

// InstanceHash locates bytes in a table of the given modulus under
// hash instance idx. Instances are independent: idx selects a seed
// pair folded into the mix, so distinct idx values behave as
// independent hash functions over the same input.
func InstanceHash(data []byte, idx, modulus int) int {
	if modulus <= 0 {
		panic("hashlayout: modulus must be positive")
	}
	high, low := itemFromBytes(data)

	seedLow := 0x9E3779B97F4A7C15 * uint64(idx+1)
	seedHigh := seedLow ^ 0xD1B54A32D192ED03

	mixed := splitMix64(high^seedHigh) ^ splitMix64(low^seedLow)
	return int(mixed % uint64(modulus))
}
