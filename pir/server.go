//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package pir

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v4/bfv"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// Server holds the Sender-side encoded PIR database: one BFV
// plaintext per (payload slot, column, bundle) triple, already
// transformed to NTT form so that query answering never waits on an
// NTT during the online phase.
type Server struct {
	params *Params
	table  *Table // nil in Direct mode

	encoder bfv.Encoder

	// db[pl][col][bundle] is the NTT-transformed plaintext for payload
	// slot pl, column col, bundle index bundle.
	db [][][]*rlwe.Plaintext
}

// NewServer builds the encoded PIR database for rows, each a
// params.PayloadSize byte record. In Direct mode rows must already be
// laid out in final order, one row per logical PIR index
// tablePos*ColSize+col; in Default mode rows are the raw,
// unreplicated database and the server builds its own replication
// table.
func NewServer(params *Params, rows [][]byte) (*Server, error) {
	for i, row := range rows {
		if len(row) != params.PayloadSize {
			return nil, fmt.Errorf("pir: row %d has %d bytes, want %d",
				i, len(row), params.PayloadSize)
		}
	}

	s := &Server{
		params:  params,
		encoder: bfv.NewEncoder(params.BFV),
	}

	if params.Mode == Default {
		s.table = params.Table
	}

	if err := s.encode(rows); err != nil {
		return nil, err
	}
	return s, nil
}

// rowAt returns the database record occupying table position tablePos,
// depth column col, or nil if that cell is empty.
func (s *Server) rowAt(rows [][]byte, tablePos, col int) []byte {
	if s.params.Mode == Direct {
		idx := tablePos*s.params.ColSize + col
		if idx < len(rows) {
			return rows[idx]
		}
		return nil
	}
	rowIdx := s.table.RowAt(tablePos, col)
	if rowIdx < 0 {
		return nil
	}
	return rows[rowIdx]
}

// encode builds db[pl][col][bundle]: uncompressed mode fills one DB
// row per slot directly from bundle·N+i; compressed mode (num_slot>1)
// interleaves num_slot logical rows per plaintext slot index.
func (s *Server) encode(rows [][]byte) error {
	p := s.params
	plainBits := bitLen(p.BFV.T())
	n := 1 << p.BFV.LogN()

	s.db = make([][][]*rlwe.Plaintext, p.NumPayloadSlot)
	for pl := 0; pl < p.NumPayloadSlot; pl++ {
		s.db[pl] = make([][]*rlwe.Plaintext, p.ColSize)
		for col := 0; col < p.ColSize; col++ {
			s.db[pl][col] = make([]*rlwe.Plaintext, p.BundleSize)
			for bundle := 0; bundle < p.BundleSize; bundle++ {
				vec := make([]uint64, n)
				for i := range vec {
					vec[i] = Sentinel
				}

				if p.NumSlot == 1 {
					for i := 0; i < n; i++ {
						globalRow := bundle*n + i
						row := s.rowAt(rows, globalRow, col)
						if row != nil {
							slots := bytesToSlots(row, plainBits-1, p.NumPayloadSlot)
							if pl < len(slots) {
								vec[i] = slots[pl]
							}
						}
					}
				} else {
					for i := 0; i < p.TableSize; i++ {
						offset := i * p.NumSlot
						b := offset / n
						if b != bundle {
							continue
						}
						row := s.rowAt(rows, i, col)
						if row != nil {
							slots := bytesToSlots(row, plainBits-1, p.NumPayloadSlot)
							if pl < len(slots) {
								vec[offset%n] = slots[pl]
							}
						}
					}
				}

				pt := bfv.NewPlaintext(p.BFV, p.BFV.MaxLevel())
				if err := s.encoder.Encode(vec, pt); err != nil {
					return fmt.Errorf("pir: encode plaintext (pl=%d col=%d bundle=%d): %w",
						pl, col, bundle, err)
				}
				s.db[pl][col][bundle] = pt
			}
		}
	}
	return nil
}

func bitLen(x uint64) int {
	n := 0
	for x > 0 {
		n++
		x >>= 1
	}
	return n
}

// Answer computes the PIR response for a batch of m*BundleSize query
// ciphertexts (one per constant-weight-code coordinate per bundle),
// returning NumPayloadSlot*BundleSize response ciphertexts in (pl,
// bundle) order, as required by section 4.3.4.
func (s *Server) Answer(evk rlwe.EvaluationKeySet, query []*rlwe.Ciphertext) ([]*rlwe.Ciphertext, error) {
	p := s.params
	if len(query) != p.EncodingSize*p.BundleSize {
		return nil, fmt.Errorf("pir: query has %d ciphertexts, want %d",
			len(query), p.EncodingSize*p.BundleSize)
	}

	eval := bfv.NewEvaluator(p.BFV, evk)

	out := make([]*rlwe.Ciphertext, p.NumPayloadSlot*p.BundleSize)

	for bundle := 0; bundle < p.BundleSize; bundle++ {
		selection := make([]*rlwe.Ciphertext, p.ColSize)
		for col := 0; col < p.ColSize; col++ {
			code := p.CWTable[col]
			qa := query[code.A*p.BundleSize+bundle]
			qb := query[code.B*p.BundleSize+bundle]

			sel, err := eval.MulNew(qa, qb)
			if err != nil {
				return nil, fmt.Errorf("pir: selection multiply (col=%d bundle=%d): %w", col, bundle, err)
			}
			if err := eval.Relinearize(sel, sel); err != nil {
				return nil, fmt.Errorf("pir: relinearize (col=%d bundle=%d): %w", col, bundle, err)
			}
			selection[col] = sel
		}

		for pl := 0; pl < p.NumPayloadSlot; pl++ {
			var resp *rlwe.Ciphertext
			for col := 0; col < p.ColSize; col++ {
				term, err := eval.MulNew(selection[col], s.db[pl][col][bundle])
				if err != nil {
					return nil, fmt.Errorf("pir: response term (pl=%d col=%d bundle=%d): %w",
						pl, col, bundle, err)
				}
				if resp == nil {
					resp = term
				} else if err := eval.Add(resp, term, resp); err != nil {
					return nil, fmt.Errorf("pir: response accumulate (pl=%d col=%d bundle=%d): %w",
						pl, col, bundle, err)
				}
			}
			out[pl*p.BundleSize+bundle] = resp
		}
	}

	return out, nil
}
