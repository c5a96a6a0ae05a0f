//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package pir

import (
	"encoding/binary"

	"github.com/markkurossi/lpsi/hashlayout"
)

// Table is the Default-mode placement of numPayloads row indices into
// a grid of tableSize table positions (addressed through BFV slots
// and bundles) by colSize depth columns (addressed through the
// constant-weight code). Because PIR row identities here are public
// sequence numbers rather than private keys, the placement is a pure
// deterministic function of (numPayloads, tableSize): both Server and
// Client compute it independently with no communication, by placing
// each row at InstanceHash(row, 0, tableSize), in ascending row order;
// rows that collide on a position take the next free depth column
// there. There is no probing to other positions and no eviction.
type Table struct {
	tableSize int
	colSize   int
	pos       []int // row -> table position
	col       []int // row -> depth column
	occupant  [][]int
}

func rowKey(row int) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(row))
	return buf[:]
}

// BuildTable derives the Default-mode placement for numPayloads rows
// into a table of tableSize positions.
func BuildTable(numPayloads, tableSize int) *Table {
	t := &Table{
		tableSize: tableSize,
		pos:       make([]int, numPayloads),
		col:       make([]int, numPayloads),
		occupant:  make([][]int, tableSize),
	}
	for row := 0; row < numPayloads; row++ {
		p := hashlayout.InstanceHash(rowKey(row), 0, tableSize)
		t.pos[row] = p
		t.col[row] = len(t.occupant[p])
		t.occupant[p] = append(t.occupant[p], row)
		if len(t.occupant[p]) > t.colSize {
			t.colSize = len(t.occupant[p])
		}
	}
	return t
}

// ColSize returns the maximum table-position occupancy observed,
// i.e. the PIR column depth needed to hold every row.
func (t *Table) ColSize() int {
	return t.colSize
}

// Position returns the (table position, depth column) pair a row was
// placed at.
func (t *Table) Position(row int) (pos, col int) {
	return t.pos[row], t.col[row]
}

// RowAt returns the row index occupying (pos, col), or -1 if empty.
func (t *Table) RowAt(pos, col int) int {
	occ := t.occupant[pos]
	if col >= len(occ) {
		return -1
	}
	return occ[col]
}
