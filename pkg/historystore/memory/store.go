package memory

import (
	"sync"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

// Store keeps everything in memory; state is lost on exit.
type Store struct {
	lock     sync.Mutex
	history  []micboard.HistoryEntry
	settings *micboard.Settings
	counters map[string]int64
}

func NewStore() *Store {
	return &Store{
		counters: make(map[string]int64),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) LoadHistory() ([]micboard.HistoryEntry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	out := make([]micboard.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out, nil
}

func (s *Store) SaveHistory(entries []micboard.HistoryEntry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.history = make([]micboard.HistoryEntry, len(entries))
	copy(s.history, entries)
	return nil
}

func (s *Store) LoadSettings() (micboard.Settings, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.settings == nil {
		return micboard.Settings{}, micboard.ErrNotFound
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(settings micboard.Settings) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.settings = &settings
	return nil
}

func (s *Store) LoadCounters() (map[string]int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SaveCounter(name string, value int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.counters[name] = value
	return nil
}
