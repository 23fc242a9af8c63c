// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/metrics"
	"github.com/ffutop/carlink/internal/regmap"
	"github.com/ffutop/carlink/internal/session"
	"github.com/ffutop/carlink/internal/simulator"
	"github.com/ffutop/carlink/transport"
	"github.com/ffutop/carlink/transport/goburrow"
	"github.com/ffutop/carlink/transport/local"
	"github.com/ffutop/carlink/transport/rtu"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app is a session built from the configuration, plus whatever has to be
// torn down with it.
type app struct {
	cfg     *config.Config
	session *session.Session
	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	regs, err := regmap.LoadFile(cfg.RegisterMap)
	if err != nil {
		return nil, err
	}
	serial, err := config.LoadSerialConfigFile(cfg.SerialConfig)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	tr, err := a.transport(regs)
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []session.Option
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, session.WithMetrics(metrics.New(reg)))
		a.serveMetrics(reg)
	}

	a.session = session.New(regs, serial, tr, opts...)
	for _, d := range cfg.Devices {
		if err := a.session.RegisterDevice(d.Car, d.Port, d.Slave); err != nil {
			a.Close()
			return nil, err
		}
	}
	slog.Info("session ready", "session", a.session.ID, "driver", cfg.Link.Driver,
		"registers", regs.Len(), "devices", len(cfg.Devices), "baud_rate", serial.BaudRate)
	return a, nil
}

func (a *app) transport(regs *regmap.Map) (transport.Transport, error) {
	switch a.cfg.Link.Driver {
	case config.DriverGoburrow:
		return goburrow.NewClient(), nil
	case config.DriverLocal:
		bus, err := simulator.Open(a.cfg.Simulator, regs)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bus.Close)
		return local.NewClient(bus.Handle), nil
	default:
		return rtu.NewClient(a.cfg.Link.RS485), nil
	}
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "err", err)
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// Close releases everything newApp set up, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	return nil
}
