//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package lpsi

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Dataset is a parsed (sender records, receiver queries) pair, read
// from a simple text format: a sender header line ("db size {sz} label
// bytes {bc} item bytes {bc}", ignored but counted), |X| `x,label`
// lines, a receiver header line ("query size {sz} intersection size
// {sz} item bytes {bc}", also ignored), and |Y| `y` lines. Neither
// header is parsed for its counts: the number of records and queries
// to read is supplied by the caller, not sniffed from the file.
type Dataset struct {
	Records []Record
	Queries [][]byte
}

// ParseDataset reads a dataset file from r, expecting exactly xCount
// sender lines after the sender header and exactly yCount receiver
// lines after the receiver header.
func ParseDataset(r io.Reader, xCount, yCount int) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	readLine := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimRight(scanner.Text(), "\r"), true
	}

	if _, ok := readLine(); !ok {
		return nil, wrapErr(ErrInputShape, fmt.Errorf("dataset: missing sender header"))
	}

	records := make([]Record, 0, xCount)
	for i := 0; i < xCount; i++ {
		line, ok := readLine()
		if !ok {
			return nil, wrapErr(ErrInputShape,
				fmt.Errorf("dataset: expected %d sender records, got %d", xCount, i))
		}
		idx := strings.IndexByte(line, ',')
		if idx < 0 {
			// No label: treat the whole line as x with an empty label.
			records = append(records, Record{X: []byte(line)})
			continue
		}
		records = append(records, Record{
			X: []byte(line[:idx]),
			V: []byte(line[idx+1:]),
		})
	}

	if _, ok := readLine(); !ok {
		return nil, wrapErr(ErrInputShape, fmt.Errorf("dataset: missing receiver header"))
	}

	queries := make([][]byte, 0, yCount)
	for i := 0; i < yCount; i++ {
		line, ok := readLine()
		if !ok {
			return nil, wrapErr(ErrInputShape,
				fmt.Errorf("dataset: expected %d receiver queries, got %d", yCount, i))
		}
		queries = append(queries, []byte(line))
	}

	return &Dataset{Records: records, Queries: queries}, nil
}

// WriteDataset renders records and queries back into the text format
// ParseDataset reads, headers included, mainly for generating
// synthetic fixtures. The header lines carry descriptive metadata
// only; readers
// must already know the record/query counts (e.g. from CLI flags)
// rather than parsing them back out of the header text.
func WriteDataset(w io.Writer, records []Record, queries [][]byte) error {
	bw := bufio.NewWriter(w)

	labelBytes := 0
	if len(records) > 0 {
		labelBytes = len(records[0].V)
	}
	if _, err := fmt.Fprintf(bw, "db size %d label bytes %d item bytes %d\n",
		len(records), labelBytes, ItemSize); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, "%s,%s\n", rec.X, rec.V); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(bw, "query size %d intersection size %d item bytes %d\n",
		len(queries), 0, ItemSize); err != nil {
		return err
	}
	for _, q := range queries {
		if _, err := fmt.Fprintf(bw, "%s\n", q); err != nil {
			return err
		}
	}
	return bw.Flush()
}
