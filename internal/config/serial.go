// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ffutop/carlink/internal/csvtab"
	"github.com/ffutop/carlink/internal/fault"
)

// Column names of the serial configuration source.
const (
	ColumnBaudRate = "baudrate"
	ColumnDataBits = "no_bits"
	ColumnParity   = "parity"
	ColumnStopBits = "stop_bits"
	ColumnTimeout  = "timeout"
)

// BaudRates lists the link speeds the transducer controllers support.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200}

// SerialConfig defines RTU link settings shared by every device on a session.
type SerialConfig struct {
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"` // "N" or "E"
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Validate checks every field against the supported set.
func (s SerialConfig) Validate() error {
	const op = "validate serial config"
	switch {
	case !slices.Contains(BaudRates, s.BaudRate):
		return fault.Newf(fault.KindConfigFormat, op, "unsupported baud rate %d", s.BaudRate)
	case s.DataBits != 7 && s.DataBits != 8:
		return fault.Newf(fault.KindConfigFormat, op, "unsupported data bits %d", s.DataBits)
	case s.Parity != "N" && s.Parity != "E":
		return fault.Newf(fault.KindConfigFormat, op, "unsupported parity %q", s.Parity)
	case s.StopBits != 1 && s.StopBits != 2:
		return fault.Newf(fault.KindConfigFormat, op, "unsupported stop bits %d", s.StopBits)
	case s.Timeout <= 0:
		return fault.Newf(fault.KindConfigFormat, op, "timeout must be positive, got %v", s.Timeout)
	}
	return nil
}

// LoadSerialConfigFile opens path and loads it with LoadSerialConfig.
func LoadSerialConfigFile(path string) (SerialConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return SerialConfig{}, fault.New(fault.KindConfigFormat, "open serial config", err)
	}
	defer f.Close()
	return LoadSerialConfig(f)
}

// LoadSerialConfig reads the link settings from the first data row of a CSV
// table with the columns baudrate, no_bits, parity, stop_bits and timeout.
// Every field is required; there are no defaults.
func LoadSerialConfig(r io.Reader) (SerialConfig, error) {
	const op = "load serial config"

	tab, err := csvtab.Open(r, ColumnBaudRate, ColumnDataBits, ColumnParity, ColumnStopBits, ColumnTimeout)
	if err != nil {
		return SerialConfig{}, fault.New(fault.KindConfigFormat, op, err)
	}
	row, err := tab.Next()
	if errors.Is(err, io.EOF) {
		return SerialConfig{}, fault.Newf(fault.KindConfigFormat, op, "no settings row")
	}
	if err != nil {
		return SerialConfig{}, fault.New(fault.KindConfigFormat, op, err)
	}

	var cfg SerialConfig
	if cfg.BaudRate, err = intField(row, ColumnBaudRate); err != nil {
		return SerialConfig{}, fault.New(fault.KindConfigFormat, op, err)
	}
	if cfg.DataBits, err = intField(row, ColumnDataBits); err != nil {
		return SerialConfig{}, fault.New(fault.KindConfigFormat, op, err)
	}
	if cfg.StopBits, err = intField(row, ColumnStopBits); err != nil {
		return SerialConfig{}, fault.New(fault.KindConfigFormat, op, err)
	}
	if cfg.Parity, err = NormalizeParity(row.Get(ColumnParity)); err != nil {
		return SerialConfig{}, fault.New(fault.KindConfigFormat, op, err)
	}

	timeout := row.Get(ColumnTimeout)
	secs, err := strconv.ParseFloat(timeout, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return SerialConfig{}, fault.Newf(fault.KindConfigFormat, op, "%s %q is not a number of seconds", ColumnTimeout, timeout)
	}
	cfg.Timeout = time.Duration(secs * float64(time.Second))

	if err := cfg.Validate(); err != nil {
		return SerialConfig{}, err
	}
	return cfg, nil
}

// NormalizeParity maps the accepted parity spellings onto "N" and "E".
func NormalizeParity(p string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(p)) {
	case "N", "NONE":
		return "N", nil
	case "E", "EVEN":
		return "E", nil
	case "":
		return "", fmt.Errorf("missing %s", ColumnParity)
	}
	return "", fmt.Errorf("unsupported parity %q", p)
}

func intField(row csvtab.Row, column string) (int, error) {
	v := row.Get(column)
	if v == "" {
		return 0, fmt.Errorf("missing %s", column)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", column, v)
	}
	return n, nil
}
