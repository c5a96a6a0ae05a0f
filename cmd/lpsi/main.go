//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Command lpsi runs one side of the two-party payable labeled private
// set intersection protocol, reading its dataset from a text file and
// printing a phase timing report on success.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/markkurossi/lpsi"
	"github.com/markkurossi/lpsi/p2p"
	"github.com/markkurossi/mpc/env"
)

const defaultAddr = ":8080"

func main() {
	sender := flag.Bool("s", false, "Run as sender (listens); default runs as receiver (dials)")
	addr := flag.String("a", defaultAddr, "Network address to listen on or dial")
	xSize := flag.Int("x", 0, "Sender database size")
	ySize := flag.Int("y", 0, "Receiver query set size")
	iSize := flag.Int("i", 0, "Claimed intersection size, for reporting only")
	payloadBytes := flag.Int("p", 0, "Label payload bytes")
	pirMode := flag.Int("m", 0, "PIR mode (accepted and logged only; PIR always runs in direct-addressing mode)")
	dataset := flag.String("f", "", "Dataset file path")
	flag.Parse()

	if len(*dataset) == 0 {
		fmt.Fprintln(os.Stderr, "lpsi: dataset file not specified (-f)")
		os.Exit(1)
	}
	if *xSize <= 0 || *ySize <= 0 {
		fmt.Fprintln(os.Stderr, "lpsi: -x and -y must both be positive")
		os.Exit(1)
	}
	// The -m flag is accepted for configuration-file compatibility, but
	// lpsi.Protocol always drives the PIR package in Direct mode: HashLayout's own
	// outer/inner cuckoo placement already computes every cell's exact
	// (table, column) address, which is what pir.Default's internal
	// hashed table exists to derive in the first place. A non-zero -m
	// is accepted and logged, not silently ignored, since honoring an
	// unimplemented mode silently would be worse than saying so.
	if *pirMode != 0 {
		log.Printf("lpsi: -m %d requested, but this build always answers PIR queries in direct-addressing mode", *pirMode)
	}

	f, err := os.Open(*dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lpsi: %s\n", err)
		os.Exit(1)
	}
	defer f.Close()

	ds, err := lpsi.ParseDataset(f, *xSize, *ySize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lpsi: %s\n", err)
		os.Exit(1)
	}

	opts := lpsi.Options{
		ItemSize:  itemSize(*payloadBytes),
		Malicious: true,
	}
	cfg := &env.Config{}

	conn, err := dialOrListen(*sender, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lpsi: %s\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if *sender {
		report, err := lpsi.RunSender(conn, cfg, ds.Records, opts)
		if err != nil {
			log.Fatalf("lpsi: sender aborted: %s", err)
		}
		report.Print(os.Stdout)
		fmt.Printf("claimed intersection size: %d\n", *iSize)
	} else {
		records, report, err := lpsi.RunReceiver(conn, cfg, ds.Queries, opts)
		if err != nil {
			log.Fatalf("lpsi: receiver aborted: %s", err)
		}
		report.Print(os.Stdout)
		fmt.Printf("recovered %d records (claimed intersection size %d)\n", len(records), *iSize)
		for _, rec := range records {
			fmt.Printf("%s,%s\n", rec.X, rec.V)
		}
	}
}

// itemSize picks a PIR row size large enough to hold the 36-byte
// BucketSlot header plus a label of payloadBytes, rounded up to
// lpsi.ItemSize's default when the caller did not ask for more.
func itemSize(payloadBytes int) int {
	need := 36 + payloadBytes
	if need <= lpsi.ItemSize {
		return lpsi.ItemSize
	}
	return need
}

// dialOrListen establishes the single peer connection the protocol
// runs over: the sender listens and accepts one connection, the
// receiver dials. The two-party LPSI protocol only ever needs this
// one direct, synchronous framed connection.
func dialOrListen(isSender bool, addr string) (*p2p.Conn, error) {
	if isSender {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		defer ln.Close()
		log.Printf("lpsi: listening on %s\n", addr)
		nc, err := ln.Accept()
		if err != nil {
			return nil, err
		}
		log.Printf("lpsi: accepted connection from %s\n", nc.RemoteAddr())
		return p2p.NewConn(nc), nil
	}

	log.Printf("lpsi: connecting to %s\n", addr)
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return p2p.NewConn(nc), nil
}
