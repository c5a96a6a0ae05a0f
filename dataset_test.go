//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lpsi

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseDatasetRoundTrip(t *testing.T) {
	const data = "db size 3 label bytes 3 item bytes 128\n" +
		"alice,111\n" +
		"bob,222\n" +
		"carol,333\n" +
		"query size 1 intersection size 0 item bytes 128\n" +
		"bob\n"

	ds, err := ParseDataset(strings.NewReader(data), 3, 1)
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if len(ds.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(ds.Records))
	}
	if string(ds.Records[1].X) != "bob" || string(ds.Records[1].V) != "222" {
		t.Fatalf("records[1] = %+v, want bob/222", ds.Records[1])
	}
	if len(ds.Queries) != 1 || string(ds.Queries[0]) != "bob" {
		t.Fatalf("queries = %v, want [bob]", ds.Queries)
	}
}

func TestParseDatasetStripsCR(t *testing.T) {
	const data = "header\r\n" +
		"alice,111\r\n" +
		"header2\r\n" +
		"alice\r\n"

	ds, err := ParseDataset(strings.NewReader(data), 1, 1)
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if string(ds.Records[0].V) != "111" {
		t.Fatalf("label = %q, want %q (no trailing CR)", ds.Records[0].V, "111")
	}
	if string(ds.Queries[0]) != "alice" {
		t.Fatalf("query = %q, want %q (no trailing CR)", ds.Queries[0], "alice")
	}
}

func TestParseDatasetMissingRecordsFails(t *testing.T) {
	const data = "header\n" +
		"alice,111\n"

	if _, err := ParseDataset(strings.NewReader(data), 3, 0); err == nil {
		t.Fatalf("expected an error for a truncated record section")
	}
}

func TestParseDatasetNoLabelFallsBackToEmptyValue(t *testing.T) {
	const data = "header\n" +
		"aloneKey\n" +
		"header2\n"

	ds, err := ParseDataset(strings.NewReader(data), 1, 0)
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if string(ds.Records[0].X) != "aloneKey" || len(ds.Records[0].V) != 0 {
		t.Fatalf("records[0] = %+v, want X=aloneKey V=empty", ds.Records[0])
	}
}

func TestWriteDatasetThenParseRoundTrip(t *testing.T) {
	records := []Record{{X: []byte("k0"), V: []byte("v0")}, {X: []byte("k1"), V: []byte("v1")}}
	queries := [][]byte{[]byte("k0"), []byte("absent")}

	var buf bytes.Buffer
	if err := WriteDataset(&buf, records, queries); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}

	ds, err := ParseDataset(&buf, len(records), len(queries))
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	for i, rec := range ds.Records {
		if string(rec.X) != string(records[i].X) || string(rec.V) != string(records[i].V) {
			t.Fatalf("record %d = %+v, want %+v", i, rec, records[i])
		}
	}
	for i, q := range ds.Queries {
		if string(q) != string(queries[i]) {
			t.Fatalf("query %d = %q, want %q", i, q, queries[i])
		}
	}
}
