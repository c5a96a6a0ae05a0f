//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package pir implements a constant-weight-code batch PIR scheme over
// the BFV homomorphic scheme, following the PIRANA construction: the
// client's query for column c is encoded as the pair (a, b) of a
// canonical weight-2 codeword of length m, so that the server can
// recover a one-hot selection vector from a single ciphertext-
// ciphertext multiplication per candidate column.
package pir

import (
	"fmt"
	"math"

	"github.com/markkurossi/lpsi/hashlayout"
	"github.com/tuneinsight/lattigo/v4/bfv"
)

// Mode selects the bucket-construction strategy: Default places every
// database row at a single hashed table position (see Table), stacking
// collisions into successive depth columns, and is not a cuckoo table;
// Direct addresses rows exactly by their logical PIR index.
type Mode int

const (
	// Default is the hashed-table PIR mode (one hash position per row,
	// no cuckoo eviction).
	Default Mode = iota

	// Direct is the deterministic-row PIR mode, addressing a row by
	// its logical index with no client-side cuckoo table.
	Direct
)

// Params carries every derived PIR parameter needed by both Server and
// Client: the BFV scheme parameters themselves plus the PIRANA table
// geometry (bundle size, slot count, column size, constant-weight
// encoding size) and the constant-weight code table.
type Params struct {
	Mode Mode

	NumPayloads    int
	PayloadSize    int
	NumQuery       int
	Compress       bool
	NumPayloadSlot int

	BundleSize int
	NumSlot    int
	ColSize    int
	TableSize  int

	EncodingSize int
	CWTable      []cwCode

	BFV bfv.Parameters

	// Table is the Default-mode row placement; nil in Direct mode,
	// where rows are addressed by the caller's own (virtual_row, slot)
	// pair (see section 4.3.1).
	Table *Table
}

// cwCode is a single constant-weight (weight-2) codeword: column c is
// assigned the pair of coordinates (A, B), A < B < m.
type cwCode struct {
	A, B int
}

// NewParams derives a full Params value for a batch of numQuery
// lookups against a database of numPayloads rows, each payloadSize
// bytes, in the requested mode.
func NewParams(mode Mode, numPayloads, payloadSize, numQuery int, compress bool) (*Params, error) {
	if numPayloads <= 0 || payloadSize <= 0 || numQuery <= 0 {
		return nil, fmt.Errorf("pir: invalid shape (payloads=%d payloadSize=%d query=%d)",
			numPayloads, payloadSize, numQuery)
	}

	p := &Params{
		Mode:        mode,
		NumPayloads: numPayloads,
		PayloadSize: payloadSize,
		NumQuery:    numQuery,
		Compress:    compress,
	}

	logN, qi, plainBits := scheduleFor(numQuery, compress)

	lit := bfv.ParametersLiteral{
		LogN:             logN,
		Q:                qi,
		T:                primeNear(plainBits),
		DefaultNTTFlag:   true,
	}
	bfvParams, err := bfv.NewParametersFromLiteral(lit)
	if err != nil {
		return nil, fmt.Errorf("pir: bfv parameter generation: %w", err)
	}
	p.BFV = bfvParams

	n := 1 << logN
	p.NumPayloadSlot = int(math.Ceil(float64(payloadSize*8) / float64(plainBits-1)))

	switch mode {
	case Default:
		b := hashlayout.OuterBucketCount(numQuery)
		if b >= n {
			p.Compress = false
		}
		p.BundleSize = int(math.Ceil(float64(b) / float64(n)))
		if p.Compress && b < n {
			p.NumSlot = n / b
		} else {
			p.NumSlot = 1
		}
		p.TableSize = n / p.NumSlot
		p.Table = BuildTable(numPayloads, p.TableSize)
		p.SetColSize(p.Table.ColSize())

	case Direct:
		b := numQuery
		p.BundleSize = int(math.Ceil(float64(b) / float64(n)))
		p.NumSlot = 1
		p.TableSize = b
		p.ColSize = 0 // set by caller from the sender's sub-bucket capacity

	default:
		return nil, fmt.Errorf("pir: unknown mode %d", mode)
	}

	return p, nil
}

// SetColSize overrides the column size (maximum bucket occupancy); the
// Default-mode table builder derives it automatically, Direct-mode
// callers must supply it explicitly (it equals the HashLayout
// sub-bucket capacity C).
func (p *Params) SetColSize(c int) {
	p.ColSize = c
	p.EncodingSize, p.CWTable = buildCWTable(c)
}

// scheduleFor returns the (LogN, Q moduli schedule, plaintext modulus
// bit length) triple for a batch of the given size, following the
// small/large split PIRANA uses: small batches fit in a degree-4096
// ring, larger ones need 8192.
func scheduleFor(numQuery int, compress bool) (int, []int, int) {
	plainBits := 17
	if compress {
		plainBits = 18
	}
	if numQuery <= 2048 {
		return 12, []int{56, 56, 24, 24}, plainBits
	}
	return 13, []int{48, 32, 24}, plainBits
}

// primeNear returns a plaintext modulus with the requested bit length
// suitable for batching (NTT-friendly prime congruent to 1 mod 2N).
// Lattigo's literal accepts a T value directly; both values below are
// congruent to 1 mod 16384, so they batch in either ring degree.
func primeNear(bits int) uint64 {
	switch bits {
	case 17:
		return 65537
	case 18:
		return 163841
	default:
		return 65537
	}
}

// buildCWTable returns the smallest m with C(m,2) >= colSize and the
// canonical enumeration of weight-2 codewords cw[0..colSize).
func buildCWTable(colSize int) (int, []cwCode) {
	m := 2
	for m*(m-1)/2 < colSize {
		m++
	}
	table := make([]cwCode, colSize)
	idx := 0
	for b := 1; b < m && idx < colSize; b++ {
		for a := 0; a < b && idx < colSize; a++ {
			table[idx] = cwCode{A: a, B: b}
			idx++
		}
	}
	return m, table
}
