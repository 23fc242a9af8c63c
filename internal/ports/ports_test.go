// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ports

import (
	"errors"
	"testing"

	"github.com/ffutop/carlink/internal/fault"
	"gotest.tools/v3/assert"
)

func TestProber_ListAvailablePorts(t *testing.T) {
	var probed []string
	p := Prober{
		Enumerate: func() ([]string, error) {
			return []string{"/dev/ttyUSB0", "COM3", "/dev/ttyS0", "COM3", "COM5"}, nil
		},
		Open: func(name string) error {
			probed = append(probed, name)
			if name == "/dev/ttyS0" {
				return errors.New("permission denied")
			}
			return nil
		},
	}

	got, err := p.ListAvailablePorts()
	assert.NilError(t, err)
	assert.DeepEqual(t, got, []string{"/dev/ttyUSB0", "COM3", "COM5"})
	assert.DeepEqual(t, probed, []string{"/dev/ttyUSB0", "COM3", "/dev/ttyS0", "COM5"})
}

func TestProber_NothingAvailable(t *testing.T) {
	p := Prober{
		Enumerate: func() ([]string, error) { return nil, nil },
		Open:      func(string) error { return nil },
	}
	got, err := p.ListAvailablePorts()
	assert.NilError(t, err)
	assert.Equal(t, len(got), 0)
}

func TestProber_EnumerateFails(t *testing.T) {
	p := Prober{
		Enumerate: func() ([]string, error) { return nil, errors.New("no sysfs") },
	}
	_, err := p.ListAvailablePorts()
	assert.ErrorIs(t, err, fault.ErrPortUnavailable)
}
