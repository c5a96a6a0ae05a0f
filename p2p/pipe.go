//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"net"
)

// Pipe returns two in-memory endpoints wired to each other: data
// written to one is read from the other. It lets a single process
// exercise both halves of the wire protocol (Sender and Receiver)
// without an actual socket, as protocol_test.go and oosot's tests do.
func Pipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}
