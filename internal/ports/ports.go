// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ports finds serial ports that can be opened on this host.
package ports

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/ffutop/carlink/internal/fault"
	gridserial "github.com/grid-x/serial"
	bugstserial "go.bug.st/serial"
)

// maxCOM is the highest Windows COM port number probed.
const maxCOM = 256

// Prober enumerates candidate port names and checks each by opening it.
type Prober struct {
	// Enumerate returns candidate port names.
	Enumerate func() ([]string, error)
	// Open opens and closes the named port, returning the open error.
	Open func(name string) error
}

// DefaultProber uses the operating system's port list and, on Windows,
// every name from COM1 to COM256.
var DefaultProber = Prober{
	Enumerate: candidates,
	Open:      probe,
}

// ListAvailablePorts returns the serial ports that can be opened right now.
func ListAvailablePorts() ([]string, error) {
	return DefaultProber.ListAvailablePorts()
}

// ListAvailablePorts returns each candidate that opens, in candidate order
// and without duplicates.
func (p Prober) ListAvailablePorts() ([]string, error) {
	names, err := p.Enumerate()
	if err != nil {
		return nil, fault.New(fault.KindPortUnavailable, "list ports", err)
	}

	seen := make(map[string]bool, len(names))
	var available []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if err := p.Open(name); err != nil {
			slog.Debug("port not available", "port", name, "err", err)
			continue
		}
		available = append(available, name)
	}
	return available, nil
}

func candidates() ([]string, error) {
	names, err := bugstserial.GetPortsList()
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" {
		for i := 1; i <= maxCOM; i++ {
			names = append(names, fmt.Sprintf("COM%d", i))
		}
	}
	return names, nil
}

func probe(name string) error {
	port, err := gridserial.Open(&gridserial.Config{
		Address:  name,
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	return port.Close()
}
