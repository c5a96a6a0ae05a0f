//
// protocol_test.go
//
// Copyright (c) 2023 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"bytes"
	"testing"
)

func writer(c *Conn) {
	c.SendUint32(44)
	c.SendData([]byte("Hello, world!"))
	c.Flush()
}

func TestProtocol(t *testing.T) {
	p0, p1 := Pipe()

	go writer(p0)

	c := p1

	v, err := c.ReceiveUint32()
	if err != nil {
		t.Fatalf("ReceiveUint32: %v", err)
	}
	if v != 44 {
		t.Errorf("ReceiveUint32: got %v, expected 44", v)
	}

	data, err := c.ReceiveData()
	if err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	if !bytes.Equal(data, []byte("Hello, world!")) {
		t.Errorf("ReceiveData: got %q, expected %q", data, "Hello, world!")
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestIOStats(t *testing.T) {
	p0, p1 := Pipe()
	go func() {
		p0.SendData([]byte("abc"))
		p0.Flush()
	}()

	before := p1.Stats
	if _, err := p1.ReceiveData(); err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	after := p1.Stats.Sub(before)
	if after.Recvd == 0 {
		t.Errorf("expected IOStats.Recvd to increase")
	}
}
