// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/carlink/internal/simulator/model"
)

// FileStorage keeps the image in memory and writes changed registers back
// to the file, syncing after every write.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the image from the file.
func (ms *FileStorage) Load() (*model.DataModel, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	m, err := model.FromImage(data)
	if err != nil {
		f.Close()
		return nil, err
	}
	ms.file = f
	ms.data = data
	return m, nil
}

// Save writes the whole image to disk.
func (ms *FileStorage) Save() error {
	if ms.data == nil || ms.file == nil {
		return nil
	}
	return ms.sync(0, len(ms.data))
}

// OnWrite writes the changed range and syncs.
func (ms *FileStorage) OnWrite(address, quantity uint16) {
	if ms.data == nil || ms.file == nil {
		return
	}
	start := int(address) * 2
	end := min(start+int(quantity)*2, len(ms.data))
	if err := ms.sync(start, end); err != nil {
		slog.Error("Failed to sync file", "path", ms.path, "err", err)
	}
}

func (ms *FileStorage) sync(start, end int) error {
	if _, err := ms.file.WriteAt(ms.data[start:end], int64(start)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	return err
}
