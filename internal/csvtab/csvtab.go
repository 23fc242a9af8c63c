// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package csvtab reads the header-keyed CSV tables used for the register
// map and the serial configuration. Tables exported from spreadsheet tools
// often start with a UTF-8 byte-order marker, which is dropped here.
package csvtab

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// ErrEmpty is returned by Open when the source has no header row.
var ErrEmpty = errors.New("empty table")

// Table is a CSV reader positioned after its header row.
type Table struct {
	r    *csv.Reader
	cols map[string]int
}

// Open reads the header row of r and checks that every required column is
// present. Column names are matched case-insensitively.
func Open(r io.Reader, required ...string) (*Table, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(bom)); err == nil && bytes.Equal(b, bom) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}
	return &Table{r: cr, cols: cols}, nil
}

// Row is one record of a Table.
type Row struct {
	Line   int
	fields []string
	cols   map[string]int
}

// Next returns the next row, or io.EOF at the end of the table.
func (t *Table) Next() (Row, error) {
	rec, err := t.r.Read()
	if err != nil {
		return Row{}, err
	}
	line, _ := t.r.FieldPos(0)
	return Row{Line: line, fields: rec, cols: t.cols}, nil
}

// Get returns the trimmed value of column, or "" when the row is short.
func (r Row) Get(column string) string {
	i, ok := r.cols[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}
