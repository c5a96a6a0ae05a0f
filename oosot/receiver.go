//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package oosot

import (
	"fmt"
	"io"

	"github.com/markkurossi/lpsi/p2p"
	"github.com/markkurossi/mpc/env"
	"github.com/markkurossi/mpc/ot"
)

// Receiver drives the Receiver side of one batch of OOS OT instances.
type Receiver struct {
	conn   *p2p.Conn
	cfg    *env.Config
	params *Params
}

// NewReceiver creates an OOS OT receiver bound to conn.
func NewReceiver(conn *p2p.Conn, cfg *env.Config) *Receiver {
	return &Receiver{conn: conn, cfg: cfg}
}

// Run executes the Receiver side of the protocol for params, recovering
// basis[choices[i]] for each instance i without revealing choices to
// the Sender beyond what the protocol's size/shape already reveals.
// len(choices) must equal params.T and every entry must be in
// [0,params.N).
func (r *Receiver) Run(params *Params, choices []int) ([][]byte, error) {
	if len(choices) != params.T {
		return nil, fmt.Errorf("oosot: got %d choices, want %d", len(choices), params.T)
	}
	for i, c := range choices {
		if c < 0 || c >= params.N {
			return nil, fmt.Errorf("oosot: choice %d (instance %d) out of range [0,%d)", c, i, params.N)
		}
	}
	r.params = params
	rnd := r.cfg.GetRandom()

	total := params.T * params.Bits
	checkCount := 0
	if params.Malicious {
		checkCount = CheckCount
	}
	slack := total + checkCount

	flags := make([]bool, slack)
	checkFlags := make([]bool, checkCount)
	if params.Malicious {
		if err := randomBools(rnd, checkFlags); err != nil {
			return nil, err
		}
	}

	base := newBaseOT(rnd)
	if err := base.InitReceiver(r.conn); err != nil {
		return nil, fmt.Errorf("oosot: base OT init: %w", err)
	}

	var layout *slackLayout
	if params.Malicious {
		seed, err := coinFlip(r.conn, rnd, false)
		if err != nil {
			return nil, fmt.Errorf("oosot: coin flip: %w", err)
		}
		layout = newSlackLayout(total, checkCount, seed)
		for k, idx := range layout.check {
			flags[idx] = checkFlags[k]
		}
	} else {
		layout = &slackLayout{total: total, slack: total}
		for i := 0; i < total; i++ {
			layout.real = append(layout.real, i)
		}
	}

	for i := 0; i < params.T; i++ {
		for l := 0; l < params.Bits; l++ {
			bit := (choices[i] >> uint(l)) & 1
			flags[layout.real[i*params.Bits+l]] = bit == 1
		}
	}

	result := make([]ot.Label, slack)
	if err := base.Receive(flags, result); err != nil {
		return nil, fmt.Errorf("oosot: base OT receive: %w", err)
	}

	if params.Malicious {
		allOK := true
		for k, idx := range layout.check {
			var l0, l1 ot.LabelData
			l0data, err := r.conn.ReceiveData()
			if err != nil {
				return nil, fmt.Errorf("oosot: read check wire: %w", err)
			}
			l1data, err := r.conn.ReceiveData()
			if err != nil {
				return nil, fmt.Errorf("oosot: read check wire: %w", err)
			}
			copy(l0[:], l0data)
			copy(l1[:], l1data)

			var want ot.Label
			if checkFlags[k] {
				want.SetData(&l1)
			} else {
				want.SetData(&l0)
			}
			if !want.Equal(result[idx]) {
				allOK = false
			}
		}

		okVal := 0
		if allOK {
			okVal = 1
		}
		if err := r.conn.SendUint32(okVal); err != nil {
			return nil, err
		}
		if err := r.conn.Flush(); err != nil {
			return nil, err
		}
		if !allOK {
			return nil, &MaliciousOtRejectError{Reason: "base-OT consistency check mismatch"}
		}
	}

	out := make([][]byte, params.T)
	for i := 0; i < params.T; i++ {
		levelLabels := make([]ot.Label, params.Bits)
		for l := 0; l < params.Bits; l++ {
			levelLabels[l] = result[layout.real[i*params.Bits+l]]
		}
		wantEnc := deriveEnc(i, choices[i], levelLabels)

		for w := 0; w < params.N; w++ {
			masked, err := r.conn.ReceiveData()
			if err != nil {
				return nil, fmt.Errorf("oosot: read masked value (instance=%d w=%d): %w", i, w, err)
			}
			if w == choices[i] {
				out[i] = xorBytes(masked, wantEnc)
			}
		}
	}
	return out, nil
}

func randomBools(r io.Reader, out []bool) error {
	buf := make([]byte, len(out))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("oosot: sample check flags: %w", err)
	}
	for i, b := range buf {
		out[i] = b&1 == 1
	}
	return nil
}
