//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package curveops implements the elliptic-curve primitives the LPSI
// protocol's DH-OPRF step needs: scalar sampling and multiplication,
// compressed point (de)serialization, and a deterministic
// try-and-increment hash-to-curve.
//
// All group operations run over NIST P-256, using filippo.io/nistec
// for constant-time point arithmetic and SEC1 compressed-point
// encode/decode.
package curveops

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"filippo.io/nistec"
)

// ScalarSize is the byte length of a P-256 scalar reduced mod the
// group order.
const ScalarSize = 32

// PointSize is the byte length of a compressed P-256 point.
const PointSize = 33

// maxHashToCurveCounter bounds the try-and-increment search. The
// probability that no even-y point exists for 2^16 consecutive
// counters is astronomically small; this is a sanity backstop, not a
// tuned parameter.
const maxHashToCurveCounter = 1 << 16

var order = func() *big.Int {
	// NIST P-256 group order.
	n, ok := new(big.Int).SetString(
		"ffffffff00000000ffffffffffffffffbce6faada7179e84f3b9cac2fc632551", 16)
	if !ok {
		panic("curveops: bad order constant")
	}
	return n
}()

// Order returns the P-256 group order n.
func Order() *big.Int {
	return new(big.Int).Set(order)
}

// Point is a P-256 group element.
type Point struct {
	p *nistec.P256Point
}

// NewScalar samples a uniform scalar in [1, order) from r.
func NewScalar(r io.Reader) (*big.Int, error) {
	for {
		buf := make([]byte, ScalarSize+8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("curveops: sample scalar: %w", err)
		}
		s := new(big.Int).Mod(new(big.Int).SetBytes(buf), order)
		if s.Sign() != 0 {
			return s, nil
		}
	}
}

// ScalarInverse returns s^-1 mod order.
func ScalarInverse(s *big.Int) (*big.Int, error) {
	inv := new(big.Int).ModInverse(s, order)
	if inv == nil {
		return nil, errors.New("curveops: scalar has no inverse")
	}
	return inv, nil
}

func scalarBytes(s *big.Int) []byte {
	var buf [ScalarSize]byte
	s.FillBytes(buf[:])
	return buf[:]
}

// ScalarMult computes p^s (additively, s*P).
func (p *Point) ScalarMult(s *big.Int) (*Point, error) {
	out := nistec.NewP256Point()
	red := new(big.Int).Mod(s, order)
	if _, err := out.ScalarMult(p.p, scalarBytes(red)); err != nil {
		return nil, fmt.Errorf("curveops: scalar mult: %w", err)
	}
	return &Point{p: out}, nil
}

// Bytes returns the 33-byte compressed SEC1 encoding of p.
func (p *Point) Bytes() []byte {
	return p.p.BytesCompressed()
}

// PointFromBytes parses a compressed 33-byte point encoding,
// returning an error for malformed input (not on the curve, wrong
// length, or the point at infinity).
func PointFromBytes(data []byte) (*Point, error) {
	if len(data) != PointSize {
		return nil, fmt.Errorf("curveops: bad point length %d", len(data))
	}
	p, err := nistec.NewP256Point().SetBytes(data)
	if err != nil {
		return nil, fmt.Errorf("curveops: decode point: %w", err)
	}
	return &Point{p: p}, nil
}

// pointFromCompressedXY builds a candidate compressed-point encoding
// (even y, per the try-and-increment convention below) from a raw
// 32-byte x-coordinate and attempts to decode it as a curve point.
func pointFromCompressedXY(x []byte) (*Point, bool) {
	var enc [PointSize]byte
	enc[0] = 0x02 // even y, matching map_data_to_point's fixed parity
	copy(enc[1:], x)

	p, err := nistec.NewP256Point().SetBytes(enc[:])
	if err != nil {
		return nil, false
	}
	return &Point{p: p}, true
}

// MapToPoint deterministically maps arbitrary data to a P-256 point
// using try-and-increment: repeatedly hash data‖counter, interpret the
// digest as a candidate x-coordinate, and accept the first counter for
// which an even-y point exists.
func MapToPoint(data []byte) (*Point, error) {
	buf := make([]byte, len(data)+4)
	copy(buf, data)

	for counter := uint32(0); counter < maxHashToCurveCounter; counter++ {
		binary.BigEndian.PutUint32(buf[len(data):], counter)
		digest := sha256.Sum256(buf)
		if p, ok := pointFromCompressedXY(digest[:]); ok {
			return p, nil
		}
	}
	return nil, errors.New("curveops: map-to-point exhausted counter space")
}

// RandomScalar is a convenience wrapper around NewScalar using
// crypto/rand.
func RandomScalar() (*big.Int, error) {
	return NewScalar(rand.Reader)
}
