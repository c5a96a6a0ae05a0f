//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lpsi

import (
	"fmt"
	"testing"

	"github.com/markkurossi/lpsi/p2p"
	"github.com/markkurossi/mpc/env"
)

// runProtocol drives one full Sender/Receiver session over an
// in-process pipe and returns the Receiver's recovered records plus
// the Sender's reported intersection size.
func runProtocol(t *testing.T, records []Record, queries [][]byte, opts Options) ([]Record, int) {
	t.Helper()

	c0, c1 := p2p.Pipe()
	cfg := &env.Config{}

	type senderResult struct {
		report *Report
		err    error
	}
	senderDone := make(chan senderResult, 1)

	go func() {
		report, err := RunSender(c0, cfg, records, opts)
		senderDone <- senderResult{report: report, err: err}
	}()

	got, _, err := RunReceiver(c1, cfg, queries, opts)
	if err != nil {
		t.Fatalf("RunReceiver: %v", err)
	}

	res := <-senderDone
	if res.err != nil {
		t.Fatalf("RunSender: %v", res.err)
	}

	return got, res.report.IntersectionSize
}

func recordSet(records []Record) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[string(r.X)] = string(r.V)
	}
	return out
}

func mustEqualSets(t *testing.T, got []Record, want map[string]string) {
	t.Helper()
	gotSet := recordSet(got)
	if len(gotSet) != len(want) {
		t.Fatalf("got %d distinct records %v, want %d %v", len(gotSet), gotSet, len(want), want)
	}
	for x, v := range want {
		gv, ok := gotSet[x]
		if !ok {
			t.Fatalf("missing expected record for x=%q in %v", x, gotSet)
		}
		if gv != v {
			t.Fatalf("record x=%q: got v=%q, want v=%q", x, gv, v)
		}
	}
}

// A tiny three-record database with a single matching query.
func TestProtocolSingleMatch(t *testing.T) {
	records := []Record{
		{X: []byte("alice"), V: []byte("111")},
		{X: []byte("bob"), V: []byte("222")},
		{X: []byte("carol"), V: []byte("333")},
	}
	queries := [][]byte{[]byte("bob")}

	got, size := runProtocol(t, records, queries, Options{})
	mustEqualSets(t, got, map[string]string{"bob": "222"})
	if size != 1 {
		t.Fatalf("Sender.IntersectionSize() = %d, want 1", size)
	}
}

// A 16-record database with three matching queries.
func TestProtocolMultipleMatches(t *testing.T) {
	var records []Record
	for i := 0; i < 16; i++ {
		records = append(records, Record{
			X: []byte(fmt.Sprintf("k%d", i)),
			V: []byte(fmt.Sprintf("v%d", i)),
		})
	}
	queries := [][]byte{[]byte("k0"), []byte("k7"), []byte("k15")}

	got, size := runProtocol(t, records, queries, Options{})
	mustEqualSets(t, got, map[string]string{
		"k0":  "v0",
		"k7":  "v7",
		"k15": "v15",
	})
	if size != 3 {
		t.Fatalf("Sender.IntersectionSize() = %d, want 3", size)
	}
}

// A single-record database and a disjoint query; the OT phase must
// be skipped entirely (zero choices) rather than invoked with an
// empty basis.
func TestProtocolDisjointSingleton(t *testing.T) {
	records := []Record{{X: []byte("k0"), V: []byte("v0")}}
	queries := [][]byte{[]byte("not_present")}

	got, size := runProtocol(t, records, queries, Options{})
	if len(got) != 0 {
		t.Fatalf("got %d records, want 0: %v", len(got), got)
	}
	if size != 0 {
		t.Fatalf("Sender.IntersectionSize() = %d, want 0", size)
	}
}

// A dense overlap where the Receiver's entire query set is a subset
// of the Sender's database.
func TestProtocolDenseSubset(t *testing.T) {
	const n = 64
	const m = 16

	var records []Record
	for i := 0; i < n; i++ {
		records = append(records, Record{
			X: []byte(fmt.Sprintf("item-%d", i)),
			V: []byte(fmt.Sprintf("value-%d", i)),
		})
	}
	var queries [][]byte
	want := make(map[string]string, m)
	for i := 0; i < m; i++ {
		key := fmt.Sprintf("item-%d", i)
		queries = append(queries, []byte(key))
		want[key] = fmt.Sprintf("value-%d", i)
	}

	got, size := runProtocol(t, records, queries, Options{})
	mustEqualSets(t, got, want)
	if size != m {
		t.Fatalf("Sender.IntersectionSize() = %d, want %d", size, m)
	}
}

// Idempotence of the empty-query filter: a Receiver set wholly disjoint from the Sender's registers no
// hits at all, even with several queries.
func TestProtocolEmptyIntersectionManyQueries(t *testing.T) {
	records := []Record{
		{X: []byte("a"), V: []byte("1")},
		{X: []byte("b"), V: []byte("2")},
	}
	queries := [][]byte{[]byte("x"), []byte("y"), []byte("z")}

	got, size := runProtocol(t, records, queries, Options{})
	if len(got) != 0 {
		t.Fatalf("got %d records, want 0: %v", len(got), got)
	}
	if size != 0 {
		t.Fatalf("Sender.IntersectionSize() = %d, want 0", size)
	}
}
