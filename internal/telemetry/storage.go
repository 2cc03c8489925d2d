// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/presence-chat/internal/util"
)

// =============================================================================
// RUN STORAGE
// =============================================================================

// idTimeLayout is the timestamp prefix of run ids.
const idTimeLayout = "20060102-150405"

// Storage keeps one JSON file per run.
type Storage struct {
	dir string
}

// NewStorage creates the directory if needed.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("telemetry: storage directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create telemetry dir: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Save writes a run atomically.
func (s *Storage) Save(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path(run.ID), data, 0600)
}

// Load reads one run.
func (s *Storage) Load(id string) (*Run, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("corrupt run %s: %w", id, err)
	}
	return &run, nil
}

// List returns the ids of runs started within [from, to], oldest first.
// Files whose names do not carry a run timestamp are skipped.
func (s *Storage) List(from, to time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		started, ok := idTime(id)
		if !ok || started.Before(from) || started.After(to) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadRange loads every readable run within [from, to].
func (s *Storage) LoadRange(from, to time.Time) ([]*Run, error) {
	ids, err := s.List(from, to)
	if err != nil {
		return nil, err
	}
	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.Load(id)
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// DeleteBefore removes runs started before the given time and returns how
// many were removed.
func (s *Storage) DeleteBefore(before time.Time) (int, error) {
	ids, err := s.List(time.Time{}, before)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if started, _ := idTime(id); !started.Before(before) {
			continue
		}
		if err := os.Remove(s.path(id)); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *Storage) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// idTime parses the timestamp prefix of a run id in local time.
func idTime(id string) (time.Time, bool) {
	if len(id) < len(idTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(idTimeLayout, id[:len(idTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
