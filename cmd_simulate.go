// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/regmap"
	"github.com/ffutop/carlink/internal/simulator"
	"github.com/ffutop/carlink/transport/rtu"
	"github.com/spf13/cobra"
)

func newSimulateCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Answer as transducer controllers on a serial port",
		Long: `Serve simulated controllers on a serial port so the register layer can
be exercised without hardware. Slave addresses, persistence and seed values
come from the simulator section of the config. Pair it with a pty, e.g.

  socat -d -d pty,raw,echo=0,link=/tmp/pts0 pty,raw,echo=0,link=/tmp/pts1`,
		Example: `  carlink simulate --port /tmp/pts1`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), root, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Serial port to serve on, overrides simulator.port.")
	return cmd
}

func runSimulate(ctx context.Context, root *rootOptions, port string) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	if port == "" {
		port = cfg.Simulator.Port
	}
	if port == "" {
		return errors.New("no simulator port configured")
	}

	regs, err := regmap.LoadFile(cfg.RegisterMap)
	if err != nil {
		return err
	}
	serial, err := config.LoadSerialConfigFile(cfg.SerialConfig)
	if err != nil {
		return err
	}
	bus, err := simulator.Open(cfg.Simulator, regs)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			slog.Error("closing simulator", "err", err)
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = rtu.NewServer(port, serial).Serve(ctx, bus.Handle)
	slog.Info("simulator stopped", "port", port)
	return err
}
