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

// hit records a PIR response row whose x' field matched a Receiver
// query element, pending key delivery via OT.
type hit struct {
	elem   int // index into yPrime / hyrs (positional, post-shuffle)
	bucket int // main bucket this element occupies
	dataLen int
	xLen    int
	masked  []byte
}

// Receiver drives the Receiver side of the protocol: OPRF scalar r_c, Y' computation, outer cuckoo placement,
// PIR query generation, and OT-gated decryption of intersection rows.
type Receiver struct {
	cfg *env.Config

	queries [][]byte // y_j, original order

	rc    *big.Int
	rcInv *big.Int

	yPrime [][]byte // Y'_i, positional (post-shuffle) order
	hyrs   [][]byte // H_y_rs[i] = S_i compressed point bytes

	outer *hashlayout.OuterCuckoo

	nh          int
	capacity    int
	queryIndex  []int // flat PIR row indices, length outer.NumBuckets*nh
	bucketOfRow []int // per flat-query position, the main bucket it belongs to

	hits []hit

	result []Record
}

// NewReceiver creates a Receiver over the Receiver's plaintext query
// set.
func NewReceiver(cfg *env.Config, queries [][]byte) *Receiver {
	return &Receiver{cfg: cfg, queries: queries}
}

// ComputeOPRFStep1 samples r_c and returns B_j = H(y_j)^{r_c} for
// every query.
func (r *Receiver) ComputeOPRFStep1() ([][]byte, error) {
	rc, err := curveops.NewScalar(r.cfg.GetRandom())
	if err != nil {
		return nil, wrapErr(ErrInputShape, fmt.Errorf("sample r_c: %w", err))
	}
	rcInv, err := curveops.ScalarInverse(rc)
	if err != nil {
		return nil, wrapErr(ErrInputShape, fmt.Errorf("invert r_c: %w", err))
	}
	r.rc = rc
	r.rcInv = rcInv

	b := make([][]byte, len(r.queries))
	for j, y := range r.queries {
		p, err := curveops.MapToPoint(symhash.H(y)[:])
		if err != nil {
			return nil, wrapErr(ErrDecodeFailure, fmt.Errorf("map y[%d]: %w", j, err))
		}
		q, err := p.ScalarMult(rc)
		if err != nil {
			return nil, wrapErr(ErrInputShape, fmt.Errorf("scalar mult y[%d]: %w", j, err))
		}
		b[j] = q.Bytes()
	}
	return b, nil
}

// ProcessOPRFStep3 finishes the DH-OPRF exchange: for every (shuffled,
// positional) entry of c, S_i = c_i^{r_c^-1}, H_y_rs[i] = S_i's bytes,
// Y'_i = H1(S_i). After this call the Receiver
// tracks its elements purely by position i; it never needs to recover
// which original y_j produced position i, since the protocol's output
// only ever names recovered (x,v) pairs, not which query caused a hit.
func (r *Receiver) ProcessOPRFStep3(c [][]byte) error {
	r.yPrime = make([][]byte, len(c))
	r.hyrs = make([][]byte, len(c))
	for i, enc := range c {
		p, err := curveops.PointFromBytes(enc)
		if err != nil {
			return wrapErr(ErrDecodeFailure, fmt.Errorf("decode C[%d]: %w", i, err))
		}
		s, err := p.ScalarMult(r.rcInv)
		if err != nil {
			return wrapErr(ErrInputShape, fmt.Errorf("scalar mult C[%d]: %w", i, err))
		}
		sb := s.Bytes()
		h1 := symhash.H1(sb)
		r.hyrs[i] = sb
		r.yPrime[i] = h1[:]
	}
	return nil
}

// BuildHashBuckets cuckoo-places Y' into the outer layer, returning
// the resulting main-bucket count so the caller can forward it to the
// Sender.
func (r *Receiver) BuildHashBuckets() (int, error) {
	outer, err := hashlayout.BuildOuterCuckoo(r.yPrime, r.cfg.GetRandom())
	if err != nil {
		return 0, wrapErr(ErrCuckooOverflow, err)
	}
	r.outer = outer
	return outer.NumBuckets, nil
}

// GeneratePIRQueryIndices builds one flat PIR query per (main bucket,
// inner row) pair: a real probe for buckets holding a Receiver
// element, and a uniformly random decoy probe for empty buckets, so
// the Sender cannot distinguish occupied from empty main buckets from
// the query pattern alone. nh and capacity come from the Sender's published
// hash-layout metadata.
func (r *Receiver) GeneratePIRQueryIndices(nh, capacity int) ([]int, error) {
	r.nh = nh
	r.capacity = capacity

	numMainBuckets := r.outer.NumBuckets
	r.queryIndex = make([]int, 0, numMainBuckets*nh)
	r.bucketOfRow = make([]int, 0, numMainBuckets*nh)

	for b := 0; b < numMainBuckets; b++ {
		elem := r.outer.BucketOccupant(b)

		var probe []int
		var err error
		if elem >= 0 {
			probe = hashlayout.ReceiverProbe(r.yPrime[elem], nh, capacity)
		} else {
			probe, err = hashlayout.DecoyProbe(nh, capacity, r.cfg.GetRandom())
			if err != nil {
				return nil, wrapErr(ErrInputShape, err)
			}
		}

		for h := 0; h < nh; h++ {
			row := b*nh*capacity + h*capacity + probe[h]
			r.queryIndex = append(r.queryIndex, row)
			r.bucketOfRow = append(r.bucketOfRow, b)
		}
	}
	return r.queryIndex, nil
}

// QueryIndices returns the flat PIR row indices generated by
// GeneratePIRQueryIndices.
func (r *Receiver) QueryIndices() []int {
	return r.queryIndex
}

// ProcessPIRResults matches the decrypted PIR rows (one per entry of
// QueryIndices, same order) against the Receiver's own Y' values,
// recording a hit for the first row of each main bucket whose x' field
// equals the Y' of the element occupying that bucket; the bucket's
// remaining rows are not scanned. A matching row whose length header
// is inconsistent is skipped (HeaderCorruption is recovered per-record).
func (r *Receiver) ProcessPIRResults(rows [][]byte) error {
	if len(rows) != len(r.queryIndex) {
		return wrapErr(ErrInputShape,
			fmt.Errorf("got %d PIR rows, want %d", len(rows), len(r.queryIndex)))
	}

	r.hits = r.hits[:0]
	for idx, row := range rows {
		b := r.bucketOfRow[idx]
		if n := len(r.hits); n > 0 && r.hits[n-1].bucket == b {
			continue // this bucket already produced its hit
		}
		elem := r.outer.BucketOccupant(b)
		if elem < 0 {
			continue // decoy row, nothing to match
		}
		if len(row) < 36 {
			continue
		}
		xPrime := row[0:32]
		if !bytesEqual(xPrime, r.yPrime[elem]) {
			continue
		}
		dataLen := int(binary.BigEndian.Uint16(row[32:34]))
		xLen := int(binary.BigEndian.Uint16(row[34:36]))
		if dataLen < 0 || xLen < 0 || xLen > dataLen || 36+dataLen > len(row) {
			continue // HeaderCorruption: skip this record, keep the session
		}
		r.hits = append(r.hits, hit{
			elem:    elem,
			bucket:  b,
			dataLen: dataLen,
			xLen:    xLen,
			masked:  append([]byte{}, row[36:36+dataLen]...),
		})
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OTChoices returns the main-bucket index to request via OT for every
// candidate hit, in hit order. An empty result means the Receiver
// found no candidate intersection rows at all; callers must
// short-circuit and skip the OT phase entirely rather than invoking it
// with zero instances.
func (r *Receiver) OTChoices() []int {
	choices := make([]int, len(r.hits))
	for i, h := range r.hits {
		choices[i] = h.bucket
	}
	return choices
}

// DecryptIntersection unmasks every candidate hit using the bucket key
// delivered by OT (keys[i] corresponds to OTChoices()[i]) and returns
// the recovered (x,v) records, skipping (not aborting on) any row
// whose unmasked length header is internally inconsistent.
func (r *Receiver) DecryptIntersection(keys [][]byte) ([]Record, error) {
	if len(keys) != len(r.hits) {
		return nil, wrapErr(ErrInputShape,
			fmt.Errorf("got %d OT keys, want %d", len(keys), len(r.hits)))
	}

	var out []Record
	for i, h := range r.hits {
		pad := symhash.H2(keys[i], r.hyrs[h.elem], h.dataLen)
		plain := xor(h.masked, pad)
		if h.xLen > len(plain) {
			continue
		}
		out = append(out, Record{
			X: append([]byte{}, plain[:h.xLen]...),
			V: append([]byte{}, plain[h.xLen:]...),
		})
	}
	r.result = out
	return out, nil
}

// Result returns the records recovered by the most recent call to
// DecryptIntersection.
func (r *Receiver) Result() []Record {
	return r.result
}
