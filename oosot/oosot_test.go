//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package oosot

import (
	"bytes"
	"testing"

	"github.com/markkurossi/lpsi/p2p"
	"github.com/markkurossi/mpc/env"
)

func basisOf(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = bytes.Repeat([]byte{byte(i + 1)}, DataSize)
	}
	return out
}

func runPair(t *testing.T, params *Params, choices []int, basis [][]byte) [][]byte {
	t.Helper()

	c0, c1 := p2p.Pipe()
	cfg := &env.Config{}

	errc := make(chan error, 1)
	go func() {
		errc <- NewSender(c0, cfg).Run(params, basis)
	}()

	got, err := NewReceiver(c1, cfg).Run(params, choices)
	if err != nil {
		t.Fatalf("Receiver.Run: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Sender.Run: %v", err)
	}
	return got
}

func TestOOSOTSemiHonest(t *testing.T) {
	params, err := NewParams(4, 8, false)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	basis := basisOf(8)
	choices := []int{0, 3, 7, 5}

	got := runPair(t, params, choices, basis)
	for i, c := range choices {
		if !bytes.Equal(got[i], basis[c]) {
			t.Errorf("instance %d: got %x, want %x", i, got[i], basis[c])
		}
	}
}

func TestOOSOTMalicious(t *testing.T) {
	params, err := NewParams(3, 4, true)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	basis := basisOf(4)
	choices := []int{2, 0, 1}

	got := runPair(t, params, choices, basis)
	for i, c := range choices {
		if !bytes.Equal(got[i], basis[c]) {
			t.Errorf("instance %d: got %x, want %x", i, got[i], basis[c])
		}
	}
}

func TestNewParamsRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := NewParams(1, 3, false); err == nil {
		t.Errorf("expected error for N=3")
	}
}
