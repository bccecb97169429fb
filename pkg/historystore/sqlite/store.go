package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"codeberg.org/miketth/micboard/pkg/historystore/sqlite/migrations"
	"codeberg.org/miketth/micboard/pkg/micboard"
)

const settingAutoSwitch = "auto_switch"

type Store struct {
	db      *sql.DB
	querier *Queries
	log     *zap.SugaredLogger

	lock    sync.Mutex
	corrupt error
}

// NewStore opens or creates the database at filename. A file that is not a
// usable sqlite database is moved aside to filename+".corrupt" and replaced by
// an empty one; LoadHistory reports micboard.ErrCorrupt until the next save.
func NewStore(filename string, log *zap.SugaredLogger) (*Store, error) {
	db, err := open(filename, log)
	var corrupt error
	if isCorruptDB(err) {
		log.Warnw("database is corrupt, starting over", "path", filename, "error", err)
		corrupt = fmt.Errorf("open %s: %w: %w", filename, micboard.ErrCorrupt, err)

		if err := os.Rename(filename, filename+".corrupt"); err != nil {
			return nil, fmt.Errorf("move corrupt database aside: %w", err)
		}
		db, err = open(filename, log)
	}
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		querier: New(db),
		log:     log,
		corrupt: corrupt,
	}, nil
}

func open(filename string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	var version int
	if err := db.QueryRow("pragma schema_version").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	if err := migrations.Migrate(db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func isCorruptDB(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadHistory() ([]micboard.HistoryEntry, error) {
	s.lock.Lock()
	corrupt := s.corrupt
	s.lock.Unlock()
	if corrupt != nil {
		return nil, corrupt
	}

	rows, err := s.querier.ListHistory(context.Background())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			return nil, fmt.Errorf("sqlite select: %w", err)
		}
		// Anything else is a value that could not be scanned.
		return nil, fmt.Errorf("sqlite select: %w: %w", micboard.ErrCorrupt, err)
	}

	entries := make([]micboard.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, micboard.HistoryEntry{
			Name:     row.Name,
			LastSeen: row.LastSeen,
		})
	}

	return entries, nil
}

func (s *Store) SaveHistory(entries []micboard.HistoryEntry) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	q := s.querier.WithTx(tx)
	if err := q.DeleteHistory(ctx); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}

	for i, entry := range entries {
		lastSeen := entry.LastSeen
		if lastSeen.IsZero() {
			lastSeen = time.Unix(0, 0)
		}
		if err := q.InsertHistoryEntry(ctx, InsertHistoryEntryParams{
			Name:     entry.Name,
			Position: int64(i),
			LastSeen: lastSeen.UTC(),
		}); err != nil {
			return fmt.Errorf("sqlite insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.lock.Lock()
	s.corrupt = nil
	s.lock.Unlock()

	return nil
}

func (s *Store) LoadSettings() (micboard.Settings, error) {
	value, err := s.querier.GetSetting(context.Background(), settingAutoSwitch)
	if errors.Is(err, sql.ErrNoRows) {
		return micboard.Settings{}, micboard.ErrNotFound
	}
	if err != nil {
		return micboard.Settings{}, fmt.Errorf("sqlite select: %w", err)
	}

	autoSwitch, err := strconv.ParseBool(value)
	if err != nil {
		return micboard.Settings{}, fmt.Errorf("parse %s=%q: %w: %w", settingAutoSwitch, value, micboard.ErrCorrupt, err)
	}

	return micboard.Settings{AutoSwitch: autoSwitch}, nil
}

func (s *Store) SaveSettings(settings micboard.Settings) error {
	if err := s.querier.SetSetting(context.Background(), SetSettingParams{
		Key:   settingAutoSwitch,
		Value: strconv.FormatBool(settings.AutoSwitch),
	}); err != nil {
		return fmt.Errorf("sqlite update: %w", err)
	}

	return nil
}

func (s *Store) LoadCounters() (map[string]int64, error) {
	rows, err := s.querier.ListCounters(context.Background())
	if err != nil {
		return nil, fmt.Errorf("sqlite select: %w", err)
	}

	counters := make(map[string]int64, len(rows))
	for _, row := range rows {
		counters[row.Name] = row.Value
	}

	return counters, nil
}

func (s *Store) SaveCounter(name string, value int64) error {
	if err := s.querier.SetCounter(context.Background(), SetCounterParams{
		Name:  name,
		Value: value,
	}); err != nil {
		return fmt.Errorf("sqlite update: %w", err)
	}

	return nil
}
