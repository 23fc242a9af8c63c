// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package regmap loads the name-indexed register map of the transducer
// controllers, so that application code can address registers such as
// "BC_SVAL" instead of raw register numbers.
package regmap

import (
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/ffutop/carlink/internal/csvtab"
	"github.com/ffutop/carlink/internal/fault"
)

// Column names of the register map source.
const (
	ColumnName  = "name"
	ColumnRegNo = "regno"
	ColumnGroup = "group"
)

// Map resolves register names to register numbers and groups.
// It is immutable once loaded and safe for concurrent use.
type Map struct {
	numbers map[string]uint16
	groups  map[string]string   // name -> group
	members map[string][]string // group -> names, in load order
	order   []string            // groups, in first-seen order
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.New(fault.KindConfigFormat, "open register map", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a CSV table with the columns name, regno and group.
// A repeated name is rejected rather than overwriting the earlier row.
func Load(r io.Reader) (*Map, error) {
	const op = "load register map"

	tab, err := csvtab.Open(r, ColumnName, ColumnRegNo, ColumnGroup)
	if err != nil {
		return nil, fault.New(fault.KindConfigFormat, op, err)
	}

	m := &Map{
		numbers: make(map[string]uint16),
		groups:  make(map[string]string),
		members: make(map[string][]string),
	}
	for {
		row, err := tab.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fault.New(fault.KindConfigFormat, op, err)
		}

		name, regno, group := row.Get(ColumnName), row.Get(ColumnRegNo), row.Get(ColumnGroup)
		switch {
		case name == "":
			return nil, fault.Newf(fault.KindConfigFormat, op, "line %d: missing %s", row.Line, ColumnName)
		case regno == "":
			return nil, fault.Newf(fault.KindConfigFormat, op, "line %d: missing %s", row.Line, ColumnRegNo)
		case group == "":
			return nil, fault.Newf(fault.KindConfigFormat, op, "line %d: missing %s", row.Line, ColumnGroup)
		}

		n, err := strconv.ParseUint(regno, 10, 16)
		if err != nil {
			return nil, fault.Newf(fault.KindConfigFormat, op, "line %d: %s %q is not a register number", row.Line, ColumnRegNo, regno)
		}
		if _, dup := m.numbers[name]; dup {
			e := fault.Newf(fault.KindDuplicateRegister, op, "line %d: register already defined", row.Line)
			e.Register = name
			return nil, e
		}

		m.numbers[name] = uint16(n)
		m.groups[name] = group
		if _, ok := m.members[group]; !ok {
			m.order = append(m.order, group)
		}
		m.members[group] = append(m.members[group], name)
	}
	return m, nil
}

// Resolve returns the register number of name.
func (m *Map) Resolve(name string) (uint16, error) {
	n, ok := m.numbers[name]
	if !ok {
		return 0, unknown("resolve register", name)
	}
	return n, nil
}

// GroupOf returns the group name of register name.
func (m *Map) GroupOf(name string) (string, error) {
	g, ok := m.groups[name]
	if !ok {
		return "", unknown("resolve register group", name)
	}
	return g, nil
}

// Names returns the register names of group in load order.
func (m *Map) Names(group string) []string {
	return append([]string(nil), m.members[group]...)
}

// Groups returns the group names in the order they first appeared.
func (m *Map) Groups() []string {
	return append([]string(nil), m.order...)
}

// Len returns the number of registers.
func (m *Map) Len() int {
	return len(m.numbers)
}

func unknown(op, name string) error {
	return &fault.Error{Op: op, Kind: fault.KindUnknownRegister, Register: name}
}
