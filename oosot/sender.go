//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package oosot

import (
	"fmt"

	"github.com/markkurossi/lpsi/p2p"
	"github.com/markkurossi/mpc/env"
	"github.com/markkurossi/mpc/ot"
)

// Sender drives the Sender side of one batch of OOS OT instances. All
// T instances share the same N-entry basis (the Sender's per-main-
// bucket keys r_k, padded to a power of two).
type Sender struct {
	conn   *p2p.Conn
	cfg    *env.Config
	params *Params
}

// NewSender creates an OOS OT sender bound to conn.
func NewSender(conn *p2p.Conn, cfg *env.Config) *Sender {
	return &Sender{conn: conn, cfg: cfg}
}

// Run executes the Sender side of the protocol for params, delivering
// basis[choice_i] to the Receiver for each instance i, without
// learning choice_i. len(basis) must equal params.N; each entry is
// zero-padded or truncated to DataSize bytes before masking.
func (s *Sender) Run(params *Params, basis [][]byte) error {
	if len(basis) != params.N {
		return fmt.Errorf("oosot: basis has %d entries, want %d", len(basis), params.N)
	}
	s.params = params
	r := s.cfg.GetRandom()

	total := params.T * params.Bits
	checkCount := 0
	if params.Malicious {
		checkCount = CheckCount
	}
	slack := total + checkCount

	wires := make([]ot.Wire, slack)
	for i := range wires {
		l0, err := ot.NewLabel(r)
		if err != nil {
			return fmt.Errorf("oosot: sample label: %w", err)
		}
		l1, err := ot.NewLabel(r)
		if err != nil {
			return fmt.Errorf("oosot: sample label: %w", err)
		}
		wires[i] = ot.Wire{L0: l0, L1: l1}
	}

	base := newBaseOT(r)
	if err := base.InitSender(s.conn); err != nil {
		return fmt.Errorf("oosot: base OT init: %w", err)
	}

	var layout *slackLayout
	if params.Malicious {
		seed, err := coinFlip(s.conn, r, true)
		if err != nil {
			return fmt.Errorf("oosot: coin flip: %w", err)
		}
		layout = newSlackLayout(total, checkCount, seed)
	} else {
		layout = &slackLayout{total: total, slack: total}
		for i := 0; i < total; i++ {
			layout.real = append(layout.real, i)
		}
	}

	if err := base.Send(wires); err != nil {
		return fmt.Errorf("oosot: base OT send: %w", err)
	}

	if params.Malicious {
		for _, idx := range layout.check {
			if err := sendWire(s.conn, wires[idx]); err != nil {
				return fmt.Errorf("oosot: reveal check wire: %w", err)
			}
		}
		if err := s.conn.Flush(); err != nil {
			return err
		}

		ok, err := s.conn.ReceiveUint32()
		if err != nil {
			return fmt.Errorf("oosot: read check result: %w", err)
		}
		if ok == 0 {
			return &MaliciousOtRejectError{Reason: "receiver reported a failed consistency check"}
		}
	}

	// Send the T*N masked basis entries in row-major order.
	for i := 0; i < params.T; i++ {
		levelWires := make([]ot.Wire, params.Bits)
		for l := 0; l < params.Bits; l++ {
			levelWires[l] = wires[layout.real[i*params.Bits+l]]
		}
		for w := 0; w < params.N; w++ {
			labels := levelLabelFor(levelWires, w)
			enc := deriveEnc(i, w, labels)
			masked := xorBytes(padTo(basis[w], DataSize), enc)
			if err := s.conn.SendData(masked); err != nil {
				return fmt.Errorf("oosot: send masked value (instance=%d w=%d): %w", i, w, err)
			}
		}
	}
	return s.conn.Flush()
}

func sendWire(conn *p2p.Conn, w ot.Wire) error {
	var l0, l1 ot.LabelData
	w.L0.GetData(&l0)
	w.L1.GetData(&l1)
	if err := conn.SendData(l0[:]); err != nil {
		return err
	}
	return conn.SendData(l1[:])
}
