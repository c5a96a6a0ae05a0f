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

// Client drives the Receiver side of a PIR exchange: it holds the BFV
// secret material, builds encrypted queries, and decodes the server's
// response into payload bytes.
type Client struct {
	params *Params

	sk  *rlwe.SecretKey
	pk  *rlwe.PublicKey
	rlk *rlwe.RelinearizationKey

	encoder   bfv.Encoder
	encryptor rlwe.Encryptor
	decryptor rlwe.Decryptor
}

// NewClient generates fresh BFV key material for params.
func NewClient(params *Params) (*Client, error) {
	kgen := bfv.NewKeyGenerator(params.BFV)
	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)

	return &Client{
		params:    params,
		sk:        sk,
		pk:        pk,
		rlk:       rlk,
		encoder:   bfv.NewEncoder(params.BFV),
		encryptor: bfv.NewEncryptor(params.BFV, pk),
		decryptor: bfv.NewDecryptor(params.BFV, sk),
	}, nil
}

// EvaluationKeySet returns the relinearization key set the Server
// needs to answer queries from this client.
func (c *Client) EvaluationKeySet() rlwe.EvaluationKeySet {
	return rlwe.NewMemEvaluationKeySet(c.rlk)
}

// MarshalRelinearizationKey serializes the client's relinearization
// key so it can be shipped to the server over a wire connection.
func (c *Client) MarshalRelinearizationKey() ([]byte, error) {
	return c.rlk.MarshalBinary()
}

// location resolves a logical row to its (table position, depth
// column) PIR address. In Default mode this is the row's placement in
// the client's own copy of the deterministic table built by
// BuildTable; in Direct mode (table nil) the caller's row already
// carries that address flattened as tablePos*ColSize+col, matching
// HashLayout's own virtual_row*C+slot addressing.
func (c *Client) location(row int, table *Table) (tablePos, col int, err error) {
	p := c.params
	if table != nil {
		tablePos, col = table.Position(row)
		return tablePos, col, nil
	}
	if p.ColSize <= 0 {
		return 0, 0, fmt.Errorf("pir: direct mode requires ColSize to be set")
	}
	tablePos, col = row/p.ColSize, row%p.ColSize
	if tablePos < 0 || tablePos >= p.TableSize {
		return 0, 0, fmt.Errorf("pir: row %d resolves to out-of-range table position %d", row, tablePos)
	}
	return tablePos, col, nil
}

// BuildQuery encodes and encrypts the selection-vector query for the
// batch of logical rows, returning m*BundleSize ciphertexts ordered by
// constant-weight coordinate then bundle, per section 4.3.3.
func (c *Client) BuildQuery(rows []int, table *Table) ([]*rlwe.Ciphertext, error) {
	p := c.params
	n := 1 << p.BFV.LogN()

	cwQuery := make([][]uint64, p.EncodingSize*p.BundleSize)
	for i := range cwQuery {
		cwQuery[i] = make([]uint64, n)
	}

	for _, row := range rows {
		tablePos, col, err := c.location(row, table)
		if err != nil {
			return nil, err
		}
		code := p.CWTable[col]

		offset := tablePos * p.NumSlot
		slotIdx := offset % n
		bundleIdx := offset / n

		cwQuery[code.A*p.BundleSize+bundleIdx][slotIdx] = 1
		cwQuery[code.B*p.BundleSize+bundleIdx][slotIdx] = 1
	}

	out := make([]*rlwe.Ciphertext, len(cwQuery))
	for k, vec := range cwQuery {
		pt := bfv.NewPlaintext(p.BFV, p.BFV.MaxLevel())
		if err := c.encoder.Encode(vec, pt); err != nil {
			return nil, fmt.Errorf("pir: encode query %d: %w", k, err)
		}
		ct, err := c.encryptor.EncryptNew(pt)
		if err != nil {
			return nil, fmt.Errorf("pir: encrypt query %d: %w", k, err)
		}
		out[k] = ct
	}
	return out, nil
}

// Decode decrypts response (NumPayloadSlot*BundleSize ciphertexts in
// (pl, bundle) order) and extracts the payload for logical row.
func (c *Client) Decode(response []*rlwe.Ciphertext, row int, table *Table) ([]byte, error) {
	p := c.params
	n := 1 << p.BFV.LogN()

	if len(response) != p.NumPayloadSlot*p.BundleSize {
		return nil, fmt.Errorf("pir: response has %d ciphertexts, want %d",
			len(response), p.NumPayloadSlot*p.BundleSize)
	}

	tablePos, _, err := c.location(row, table)
	if err != nil {
		return nil, err
	}
	offset := tablePos * p.NumSlot
	slotIdx := offset % n
	bundleIdx := offset / n

	plainBits := bitLen(p.BFV.T())
	slots := make([]uint64, p.NumPayloadSlot)

	for pl := 0; pl < p.NumPayloadSlot; pl++ {
		ct := response[pl*p.BundleSize+bundleIdx]
		pt := c.decryptor.DecryptNew(ct)
		values := make([]uint64, n)
		if err := c.encoder.Decode(pt, values); err != nil {
			return nil, fmt.Errorf("pir: decode response (pl=%d): %w", pl, err)
		}
		slots[pl] = values[slotIdx]
	}

	return slotsToBytes(slots, plainBits-1, p.PayloadSize), nil
}
