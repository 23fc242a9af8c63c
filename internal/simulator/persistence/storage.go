// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ffutop/carlink/internal/config"
	"github.com/ffutop/carlink/internal/fault"
	"github.com/ffutop/carlink/internal/simulator/model"
)

// Storage types
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeMmap   = "mmap"
)

// Storage persists the register image of one simulated slave.
type Storage interface {
	// Load returns the data model, creating an empty image if none exists.
	Load() (*model.DataModel, error)

	// Save flushes the current image.
	Save() error

	// OnWrite is called after registers in [address, address+quantity)
	// changed, so the storage can persist them right away.
	OnWrite(address, quantity uint16)

	Close() error
}

// New returns the storage selected by cfg for slave id. File backed types
// keep one image per slave in cfg.Path.
func New(cfg config.PersistenceConfig, id byte) (Storage, error) {
	const op = "open simulator storage"
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryStorage(), nil
	case TypeFile, TypeMmap:
		if cfg.Path == "" {
			return nil, fault.Newf(fault.KindConfigFormat, op, "%s storage needs a path", cfg.Type)
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fault.New(fault.KindConfigFormat, op, err)
		}
		path := ImagePath(cfg.Path, id)
		slog.Info("simulator storage", "type", cfg.Type, "slave_id", id, "path", path)
		if cfg.Type == TypeFile {
			return NewFileStorage(path), nil
		}
		return NewMmapStorage(path), nil
	default:
		return nil, fault.Newf(fault.KindConfigFormat, op, "unknown persistence type %q", cfg.Type)
	}
}

// ImagePath returns the image file of slave id under dir.
func ImagePath(dir string, id byte) string {
	return filepath.Join(dir, fmt.Sprintf("slave-%03d.img", id))
}

// openImage opens path, creating it and sizing it to a full register image.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(model.Size) {
		if err := f.Truncate(int64(model.Size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize image: %w", err)
		}
	}
	return f, nil
}
