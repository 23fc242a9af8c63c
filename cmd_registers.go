// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ffutop/carlink/internal/codec"
	"github.com/ffutop/carlink/internal/regmap"
	"github.com/spf13/cobra"
)

func newRegistersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "registers",
		Short: "Print the register map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			regs, err := regmap.LoadFile(cfg.RegisterMap)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GROUP\tNAME\tREGNO\tDECODE")
			for _, group := range regs.Groups() {
				decode := "raw"
				if codec.IsFixedPoint(group) {
					decode = "fixed-point"
				}
				for _, name := range regs.Names(group) {
					n, _ := regs.Resolve(name)
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", group, name, n, decode)
				}
			}
			return w.Flush()
		},
	}
}
