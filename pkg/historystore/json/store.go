package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

type state struct {
	History  []micboard.HistoryEntry `json:"history"`
	Settings *micboard.Settings      `json:"settings,omitempty"`
	Counters map[string]int64        `json:"counters"`
}

// Store keeps micboard state in a single JSON file. Changes are written by
// SaveLooper, or immediately by Flush.
type Store struct {
	state   state
	file    *os.File
	lock    sync.Mutex
	dirty   bool
	corrupt error
}

// NewStore opens filename, creating it if needed. A file that cannot be
// decoded does not fail the open: the store starts empty and Load* report
// micboard.ErrCorrupt until the next save overwrites the file.
func NewStore(filename string) (*Store, error) {
	fileExists := true
	_, err := os.Stat(filename)
	if os.IsNotExist(err) {
		fileExists = false
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	store := &Store{
		state: state{Counters: make(map[string]int64)},
		file:  file,
		dirty: true,
	}

	if fileExists {
		err = store.load()
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("load: %w", err)
		}

		store.dirty = false
	}

	return store, nil
}

func (s *Store) Close() error {
	if err := s.save(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("save: %w", err)
	}
	return s.file.Close()
}

func (s *Store) load() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, err := s.file.Seek(0, 0)
	if err != nil {
		return fmt.Errorf("seek to start of file: %w", err)
	}

	var loaded state
	dec := json.NewDecoder(s.file)
	err = dec.Decode(&loaded)
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		s.corrupt = fmt.Errorf("decode json: %w: %w", micboard.ErrCorrupt, err)
		return nil
	}

	if loaded.Counters == nil {
		loaded.Counters = make(map[string]int64)
	}
	s.state = loaded

	return nil
}

func (s *Store) save() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.dirty {
		return nil
	}

	_, err := s.file.Seek(0, 0)
	if err != nil {
		return fmt.Errorf("seek to start of file: %w", err)
	}

	err = s.file.Truncate(0)
	if err != nil {
		return fmt.Errorf("truncate file: %w", err)
	}

	enc := json.NewEncoder(s.file)
	enc.SetIndent("", "  ")
	err = enc.Encode(s.state)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	err = s.file.Sync()
	if err != nil {
		return fmt.Errorf("sync file: %w", err)
	}

	s.dirty = false

	return nil
}

// Flush writes pending changes now.
func (s *Store) Flush() error {
	return s.save()
}

func (s *Store) SaveLooper(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			err := s.save()
			if err != nil {
				return fmt.Errorf("save: %w", err)
			}

			return ctx.Err()
		case <-time.After(time.Minute):
			err := s.save()
			if err != nil {
				return fmt.Errorf("save: %w", err)
			}
		}
	}
}

func (s *Store) LoadHistory() ([]micboard.HistoryEntry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.corrupt != nil {
		return nil, s.corrupt
	}

	out := make([]micboard.HistoryEntry, len(s.state.History))
	copy(out, s.state.History)
	return out, nil
}

func (s *Store) SaveHistory(entries []micboard.HistoryEntry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.state.History = make([]micboard.HistoryEntry, len(entries))
	copy(s.state.History, entries)
	s.markDirty()
	return nil
}

func (s *Store) LoadSettings() (micboard.Settings, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.corrupt != nil {
		return micboard.Settings{}, s.corrupt
	}
	if s.state.Settings == nil {
		return micboard.Settings{}, micboard.ErrNotFound
	}
	return *s.state.Settings, nil
}

func (s *Store) SaveSettings(settings micboard.Settings) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.state.Settings = &settings
	s.markDirty()
	return nil
}

func (s *Store) LoadCounters() (map[string]int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.corrupt != nil {
		return nil, s.corrupt
	}

	out := make(map[string]int64, len(s.state.Counters))
	for k, v := range s.state.Counters {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SaveCounter(name string, value int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.state.Counters[name] = value
	s.markDirty()
	return nil
}

// markDirty must be called with the lock held. The first write after a
// corrupt load replaces the file, so the corruption is no longer reported.
func (s *Store) markDirty() {
	s.dirty = true
	s.corrupt = nil
}
