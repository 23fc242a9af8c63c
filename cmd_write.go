// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func newWriteCmd(root *rootOptions) *cobra.Command {
	flags := &deviceFlags{}

	cmd := &cobra.Command{
		Use:   "write <car> <register> <raw>",
		Short: "Write a raw value to a named register of a car",
		Long: `Write one holding register of a car's controller. The value is sent as
is: fixed-point registers are not scaled, so 10.23 in an sval register is
written as 0x0A17 (2583).`,
		Example: `  carlink write 1 PB_SVAL 2583
  carlink write 1 PB_SVAL 0x0A17 --port COM5 --slave 2`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseUint(args[2], 0, 16)
			if err != nil {
				return fmt.Errorf("raw value %q: %w", args[2], err)
			}
			return runWrite(cmd.Context(), cmd.OutOrStdout(), root, flags, args[0], args[1], uint16(value))
		},
	}
	flags.bind(cmd)
	return cmd
}

func runWrite(ctx context.Context, out io.Writer, root *rootOptions, flags *deviceFlags, car, register string, value uint16) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := flags.apply(a, car); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.session.Set(ctx, car, register, value); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s %d\n", car, register, value)
	return nil
}
