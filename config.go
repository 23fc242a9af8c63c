// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"

	"github.com/ffutop/carlink/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func (o *rootOptions) bind(cmd *cobra.Command) {
	o.v = viper.New()

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configFile, "config", "c", "", "Configuration file path.")
	flags.StringP("log-level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	flags.StringP("log-file", "L", "", "Log file name ('-' for logging to STDERR only).")
	flags.String("driver", config.DriverRTU, "Register transport (rtu, goburrow, local).")
	flags.String("metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9108.")

	// Flags only override the config file when set on the command line.
	for key, flag := range map[string]string{
		"log.level":      "log-level",
		"log.file":       "log-file",
		"link.driver":    "driver",
		"metrics.listen": "metrics-listen",
	} {
		if err := o.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// load reads the configuration and installs the logger it names.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.Log)
	return cfg, nil
}
