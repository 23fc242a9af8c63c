// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// deviceFlags registers the command's car ad hoc, on top of the devices in
// the config file.
type deviceFlags struct {
	port  string
	slave int
}

func (f *deviceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.port, "port", "", "Serial port of the car's controller, overrides the config.")
	cmd.Flags().IntVar(&f.slave, "slave", 1, "Slave address used with --port.")
}

func (f *deviceFlags) apply(a *app, car string) error {
	if f.port == "" {
		return nil
	}
	return a.session.RegisterDevice(car, f.port, f.slave)
}

type readFlags struct {
	device   deviceFlags
	interval time.Duration
}

func newReadCmd(root *rootOptions) *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read <car> <register>",
		Short: "Read a named register of a car",
		Long: `Read one holding register of a car's controller and print its decoded
value. Registers in the sval and rval groups are packed fixed-point values;
all others are printed as read.`,
		Example: `  # Car 1 as configured in carlink.yaml
  carlink read 1 BC_SVAL

  # Ad hoc device, re-read every second until interrupted
  carlink read 7 BC_RVAL --port /dev/ttyUSB0 --slave 2 --interval 1s`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd.Context(), cmd.OutOrStdout(), root, flags, args[0], args[1])
		},
	}
	flags.device.bind(cmd)
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "Repeat the read at this interval until interrupted.")
	return cmd
}

func runRead(ctx context.Context, out io.Writer, root *rootOptions, flags *readFlags, car, register string) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := flags.device.apply(a, car); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		v, err := a.session.DataRequest(ctx, car, register)
		if err != nil {
			if flags.interval == 0 {
				return err
			}
			slog.Warn("read failed", "car", car, "register", register, "err", err)
		} else {
			fmt.Fprintf(out, "%s %s %s\n", car, register, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if flags.interval == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(flags.interval):
		}
	}
}
