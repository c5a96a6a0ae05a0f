//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lpsi

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/markkurossi/lpsi/curveops"
	"github.com/markkurossi/lpsi/hashlayout"
	"github.com/markkurossi/lpsi/symhash"
	"github.com/markkurossi/mpc/env"
)

// ItemSize is the default per-row PIR payload size: 32 bytes for x'
// plus a remainder used for the masked header and ciphertext.
const ItemSize = 128

// Record is one Sender-held labeled key-value pair (x_i, v_i).
type Record struct {
	X []byte
	V []byte
}

// Sender drives the Sender side of the protocol: OPRF scalar r_s, X' computation, bucket construction,
// PIR database export, and OT basis preparation.
type Sender struct {
	cfg *env.Config

	records []Record
	itemSize int

	rs *big.Int

	// permutation hides the Sender's PRP from the Receiver: perm[i]
	// is the original input index placed at output position i.
	// Exported to nobody.
	perm []int

	xPrime [][]byte // X'_j, 32 bytes
	hxrs   [][]byte // H(x_j)^{r_s} compressed point bytes, 33 bytes

	numMainBuckets int
	nh             int
	subCapacity    int

	bucketKeys [][]byte // r_k per main bucket, 32 bytes each

	outer  *hashlayout.OuterSimpleHash
	grids  []*hashlayout.InnerGrid // per main bucket, nil if empty
	unique [][]int                 // per main bucket: grid-position -> bucket occupant index

	pirRows          [][]byte
	intersectionSize int
}

// NewSender creates a Sender over records, each a (x,v) pair. itemSize
// is the fixed PIR row size (ItemSize if zero).
func NewSender(cfg *env.Config, records []Record, itemSize int) *Sender {
	if itemSize <= 0 {
		itemSize = ItemSize
	}
	return &Sender{cfg: cfg, records: records, itemSize: itemSize}
}

// ComputeXPrime samples r_s and computes X'_j = H1(H(x_j)^{r_s}) and
// H_x_rs[j] = H(x_j)^{r_s} for every record.
func (s *Sender) ComputeXPrime() error {
	rs, err := curveops.NewScalar(s.cfg.GetRandom())
	if err != nil {
		return wrapErr(ErrInputShape, fmt.Errorf("sample r_s: %w", err))
	}
	s.rs = rs

	s.xPrime = make([][]byte, len(s.records))
	s.hxrs = make([][]byte, len(s.records))

	for j, rec := range s.records {
		p, err := curveops.MapToPoint(symhash.H(rec.X)[:])
		if err != nil {
			return wrapErr(ErrDecodeFailure, fmt.Errorf("map x[%d]: %w", j, err))
		}
		q, err := p.ScalarMult(rs)
		if err != nil {
			return wrapErr(ErrInputShape, fmt.Errorf("scalar mult x[%d]: %w", j, err))
		}
		enc := q.Bytes()
		h1 := symhash.H1(enc)
		s.xPrime[j] = h1[:]
		s.hxrs[j] = enc
	}
	return nil
}

// ProcessOPRFStep2 implements the Sender's half of the DH-OPRF
// exchange: it blinds every Receiver share B_i with r_s and returns
// the result under a session-local permutation the Receiver must
// never learn.
func (s *Sender) ProcessOPRFStep2(b [][]byte) ([][]byte, error) {
	n := len(b)
	perm, err := randomPermutation(n, s.cfg.GetRandom())
	if err != nil {
		return nil, wrapErr(ErrInputShape, err)
	}
	s.perm = perm

	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		// out[i] = B[perm[i]]^{r_s}; perm[i] is the original index
		// placed at output position i. Either forward or inverse
		// permutation convention hides the mapping equally well from
		// the Receiver, who only ever sees positional indices
		// thereafter.
		point, err := curveops.PointFromBytes(b[perm[i]])
		if err != nil {
			return nil, wrapErr(ErrDecodeFailure, fmt.Errorf("decode B[%d]: %w", perm[i], err))
		}
		q, err := point.ScalarMult(s.rs)
		if err != nil {
			return nil, wrapErr(ErrInputShape, fmt.Errorf("scalar mult B[%d]: %w", perm[i], err))
		}
		out[i] = q.Bytes()
	}
	return out, nil
}

// randomPermutation draws a uniform permutation of [0,n) via Fisher-Yates.
func randomPermutation(n int, r interface{ Read([]byte) (int, error) }) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	for i := n - 1; i > 0; i-- {
		var buf [4]byte
		if _, err := r.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("permutation rng: %w", err)
		}
		j := int(binary.BigEndian.Uint32(buf[:]) % uint32(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// BuildHashBuckets places every record's X' into its outer-layer main
// buckets (3-replica simple hash) under numMainBuckets buckets, then
// allocates one random 32-byte r_k per main bucket.
func (s *Sender) BuildHashBuckets(numMainBuckets int) error {
	s.numMainBuckets = numMainBuckets
	s.outer = hashlayout.BuildOuterSimpleHash(s.xPrime, numMainBuckets)

	s.bucketKeys = make([][]byte, numMainBuckets)
	for b := 0; b < numMainBuckets; b++ {
		key := make([]byte, 32)
		if _, err := s.cfg.GetRandom().Read(key); err != nil {
			return wrapErr(ErrInputShape, fmt.Errorf("sample r_k[%d]: %w", b, err))
		}
		s.bucketKeys[b] = key
	}
	return nil
}

// BuildSubBuckets derives the inner sub-bucket capacity from the
// largest outer main-bucket occupancy and cuckoo-places every main
// bucket's occupants across nh inner rows.
func (s *Sender) BuildSubBuckets(nh int) error {
	s.nh = nh
	s.subCapacity = hashlayout.SubBucketCapacity(s.outer.MaxFill())

	s.grids = make([]*hashlayout.InnerGrid, s.numMainBuckets)
	s.unique = make([][]int, s.numMainBuckets)

	for b := 0; b < s.numMainBuckets; b++ {
		occupants := s.outer.Bucket(b)
		if len(occupants) == 0 {
			continue
		}
		keys := make([][]byte, len(occupants))
		for i, idx := range occupants {
			keys[i] = s.xPrime[idx]
		}
		grid, unique, err := hashlayout.BuildInnerGrid(keys, nh, s.subCapacity, hashlayout.MaxRetry, s.cfg.GetRandom())
		if err != nil {
			return wrapErr(ErrCuckooOverflow, err)
		}
		s.grids[b] = grid
		// unique[pos] indexes into occupants/keys; translate to the
		// record index so PreparePIRDatabase can look up X'/H_x_rs.
		translated := make([]int, len(unique))
		for pos, localIdx := range unique {
			translated[pos] = occupants[localIdx]
		}
		s.unique[b] = translated
	}
	return nil
}

// PreparePIRDatabase flattens the (main, sub-row, slot) grid into
// B*nh*C dense rows of itemSize bytes each, masking every populated
// slot under its main bucket's r_k.
func (s *Sender) PreparePIRDatabase() error {
	total := s.numMainBuckets * s.nh * s.subCapacity
	s.pirRows = make([][]byte, total)

	idx := 0
	for b := 0; b < s.numMainBuckets; b++ {
		grid := s.grids[b]
		for h := 0; h < s.nh; h++ {
			for slot := 0; slot < s.subCapacity; slot++ {
				var row []byte
				if grid != nil {
					pos := grid.Row(h)[slot]
					if pos >= 0 {
						recIdx := s.unique[b][pos]
						r, err := s.maskSlot(b, recIdx)
						if err != nil {
							return err
						}
						row = r
					}
				}
				if row == nil {
					row = emptySlot(s.itemSize)
				}
				s.pirRows[idx] = row
				idx++
			}
		}
	}
	return nil
}

// maskSlot builds the BucketSlot wire encoding for record recIdx under
// main bucket b's key: x' (32 bytes) followed by data_len, x_len
// headers and the XOR-masked (x‖v).
func (s *Sender) maskSlot(b, recIdx int) ([]byte, error) {
	rec := s.records[recIdx]
	plain := append(append([]byte{}, rec.X...), rec.V...)
	if len(plain) > s.itemSize-36 {
		return nil, wrapErr(ErrInputShape,
			fmt.Errorf("record %d (x=%d v=%d bytes) too large for item size %d",
				recIdx, len(rec.X), len(rec.V), s.itemSize))
	}

	pad := symhash.H2(s.bucketKeys[b], s.hxrs[recIdx], len(plain))
	enc := xor(plain, pad)

	row := make([]byte, s.itemSize)
	copy(row[0:32], s.xPrime[recIdx])
	binary.BigEndian.PutUint16(row[32:34], uint16(len(plain)))
	binary.BigEndian.PutUint16(row[34:36], uint16(len(rec.X)))
	copy(row[36:], enc)
	return row, nil
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// emptySlot fills an unused PIR cell with a fixed non-zero pattern
// (masked[i] = (i+1) mod 256, all-zero x') so an empty row is never
// bit-identical to any real masked row.
func emptySlot(itemSize int) []byte {
	row := make([]byte, itemSize)
	for i := 32; i < itemSize; i++ {
		row[i] = byte(((i - 32) + 1) % 256)
	}
	return row
}

// PIRDatabaseBytes returns the flattened PIR database rows.
func (s *Sender) PIRDatabaseBytes() [][]byte {
	return s.pirRows
}

// ItemSize returns the fixed PIR row size in bytes.
func (s *Sender) ItemSize() int {
	return s.itemSize
}

// NumMainBuckets, NH and SubCapacity expose the hash-layout metadata:
// the main-bucket count received from the Receiver, and the nh and
// sub-bucket capacity the Sender publishes to the Receiver before PIR
// query generation.
func (s *Sender) NumMainBuckets() int { return s.numMainBuckets }
func (s *Sender) NH() int             { return s.nh }
func (s *Sender) SubCapacity() int    { return s.subCapacity }

// PrepareOTInputs pads the bucket-key basis to a power of two with
// zero keys and records the observed intersection size, the only
// signal the Sender receives about the outcome.
func (s *Sender) PrepareOTInputs(receiverChoiceCount int) [][]byte {
	s.intersectionSize = receiverChoiceCount

	n := 1
	for n < s.numMainBuckets {
		n *= 2
	}
	basis := make([][]byte, n)
	for i := range basis {
		if i < len(s.bucketKeys) {
			basis[i] = s.bucketKeys[i]
		} else {
			basis[i] = make([]byte, 32)
		}
	}
	return basis
}

// IntersectionSize returns the only signal the Sender learns about
// the protocol's outcome: the count of valid Receiver OT choices.
func (s *Sender) IntersectionSize() int {
	return s.intersectionSize
}
