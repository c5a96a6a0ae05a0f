//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package oosot implements the malicious-secure k-out-of-N OOS
// (Orrù-Orsini-Scholl) OT extension the LPSI protocol's key-delivery
// phase needs: T independent instances, each letting the Receiver
// learn exactly one of N Sender-held byte strings, with neither side
// learning anything beyond that.
//
// The instance-level 1-out-of-2 random OT that this package extends
// into 1-out-of-N is treated as a black box: it is built on ot.COT
// (an IKNP extension over an ot.CO base OT), the same primitive a
// garbled-circuit evaluator would use for wire-label transfer.
package oosot

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/markkurossi/lpsi/p2p"
	"github.com/markkurossi/lpsi/symhash"
	"github.com/markkurossi/mpc/ot"
)

// DataSize is the fixed length, in bytes, of every string the
// extension transfers.
const DataSize = 32

// CheckCount is the number of sacrificial base-OT instances spent on
// the malicious consistency check. It sets the soundness error at
// roughly 2^-CheckCount, i.e. the usual 40-bit statistical security
// target for this kind of check.
const CheckCount = 40

// Params describes one batch of OOS OT: T parallel instances, each a
// choice of one of N Sender-held strings.
type Params struct {
	T         int
	N         int
	Bits      int
	Malicious bool
}

// NewParams derives Params for t instances choosing among n options.
// n must be a power of two; the Sender side is responsible for
// padding its basis vector to 2^ceil(log2(B)) with zero keys.
func NewParams(t, n int, malicious bool) (*Params, error) {
	if t <= 0 {
		return nil, fmt.Errorf("oosot: non-positive instance count %d", t)
	}
	if n <= 0 {
		return nil, fmt.Errorf("oosot: non-positive choice count %d", n)
	}
	bits := int(math.Ceil(math.Log2(float64(n))))
	if (1 << bits) != n {
		return nil, fmt.Errorf("oosot: N=%d is not a power of two", n)
	}
	if bits == 0 {
		bits = 1
	}
	return &Params{T: t, N: n, Bits: bits, Malicious: malicious}, nil
}

// MaliciousOtRejectError reports that the OOS consistency check
// failed: the counterparty (or the channel) is assumed adversarial and
// the session must abort without revealing anything further.
type MaliciousOtRejectError struct {
	Reason string
}

func (e *MaliciousOtRejectError) Error() string {
	return fmt.Sprintf("oosot: malicious OT check failed: %s", e.Reason)
}

// slackLayout lays out the base-OT index space: T*Bits positions are
// the real per-(instance,level) transfers; an extra CheckCount
// positions (only present when malicious is set) are sacrificial and
// revealed in the clear during the check phase. Without the check the
// real positions are simply 0..T*Bits-1. With it, a
// jointly sampled seed decides, after the base OT has already run,
// which global indices fall in which set, so neither side can bias
// its behavior toward the positions it expects to be checked.
type slackLayout struct {
	total   int // T*Bits
	slack   int // total + checkCount
	real    []int
	check   []int
}

func newSlackLayout(total, checkCount int, seed []byte) *slackLayout {
	slack := total + checkCount
	perm := permutation(slack, seed)

	l := &slackLayout{total: total, slack: slack}
	l.check = append(l.check, perm[:checkCount]...)
	real := append([]int{}, perm[checkCount:]...)
	// Canonical order so (instance,level) indices map to real[]
	// positions deterministically on both sides.
	sortInts(real)
	l.real = real
	return l
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// permutation derives a pseudo-random permutation of [0,n) from seed
// using a Fisher-Yates shuffle driven by a SHA-256-based PRG.
func permutation(n int, seed []byte) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	if n <= 1 {
		return out
	}
	stream := symhash.H2(seed, []byte("oosot-permutation"), 4*n)
	for i := n - 1; i > 0; i-- {
		v := binary.BigEndian.Uint32(stream[4*i : 4*i+4])
		j := int(v % uint32(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// coinFlip performs a minimal two-message coin flip: each side
// contributes 32 random bytes and both derive seed = H(a‖b). This does
// not defend against a fully malicious equivocating sender of the
// *second* message, which is an accepted simplification for a
// check whose purpose is to catch corrupted corrections rather than
// to meet the full OOS simulation-security proof.
func coinFlip(conn *p2p.Conn, r io.Reader, sendFirst bool) ([]byte, error) {
	mine := make([]byte, 32)
	if _, err := io.ReadFull(r, mine); err != nil {
		return nil, err
	}

	var theirs []byte
	var err error
	if sendFirst {
		if err = conn.SendData(mine); err != nil {
			return nil, err
		}
		if err = conn.Flush(); err != nil {
			return nil, err
		}
		theirs, err = conn.ReceiveData()
		if err != nil {
			return nil, err
		}
	} else {
		theirs, err = conn.ReceiveData()
		if err != nil {
			return nil, err
		}
		if err = conn.SendData(mine); err != nil {
			return nil, err
		}
		if err = conn.Flush(); err != nil {
			return nil, err
		}
	}

	joint := make([]byte, 0, 64)
	if sendFirst {
		joint = append(joint, mine...)
		joint = append(joint, theirs...)
	} else {
		joint = append(joint, theirs...)
		joint = append(joint, mine...)
	}
	h := symhash.H(joint)
	return h[:], nil
}

func newBaseOT(r io.Reader) ot.OT {
	return ot.NewCOT(ot.NewCO(), r)
}

// concatLabels flattens a slice of 16-byte OT labels into one buffer.
func concatLabels(labels []ot.Label) []byte {
	buf := make([]byte, 0, 16*len(labels))
	for _, label := range labels {
		var ld ot.LabelData
		label.GetData(&ld)
		buf = append(buf, ld[:]...)
	}
	return buf
}

// levelLabelFor picks, for level l, the label corresponding to bit b
// of the choice: Sender holds both wires[l].L0/L1, so it can compute
// the key for any w by selecting the label matching w's bit at each
// level.
func levelLabelFor(wires []ot.Wire, w int) []ot.Label {
	out := make([]ot.Label, len(wires))
	for l, wire := range wires {
		bit := (w >> uint(l)) & 1
		if bit == 0 {
			out[l] = wire.L0
		} else {
			out[l] = wire.L1
		}
	}
	return out
}

// deriveEnc hashes the per-level label concatenation into a
// DataSize-byte one-time-pad key unique to (instance, w).
func deriveEnc(instance, w int, levelLabels []ot.Label) []byte {
	buf := concatLabels(levelLabels)
	var idx [8]byte
	binary.BigEndian.PutUint32(idx[0:4], uint32(instance))
	binary.BigEndian.PutUint32(idx[4:8], uint32(w))
	return symhash.H2(buf, idx[:], DataSize)
}

func padTo(data []byte, n int) []byte {
	if len(data) >= n {
		return data[:n]
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
