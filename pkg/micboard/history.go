package micboard

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// History is the ordered device priority list, backed by a HistoryStore.
// It is not safe for concurrent use; the Switcher owns it.
type History struct {
	store   HistoryStore
	exclude *Exclusion
	log     *zap.SugaredLogger
	now     func() time.Time

	entries []HistoryEntry
}

func NewHistory(store HistoryStore, exclude *Exclusion, log *zap.SugaredLogger) *History {
	return &History{
		store:   store,
		exclude: exclude,
		log:     log,
		now:     time.Now,
	}
}

// Load reads the persisted history. Corrupt or unreadable state is thrown
// away and replaced with an empty history; losing preferences is acceptable,
// failing to start is not.
func (h *History) Load() []HistoryEntry {
	entries, err := h.store.LoadHistory()
	switch {
	case IsCorrupt(err):
		h.log.Warnw("discarding corrupt device history", "error", err)
		h.entries = nil
		h.persist()
		return h.Entries()
	case err != nil:
		h.log.Errorw("load device history, starting empty", "error", err)
		h.entries = nil
		return h.Entries()
	}

	h.entries = dedupe(entries)
	return h.Entries()
}

// Entries returns a copy of the current history.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int {
	return len(h.entries)
}

// Index returns the priority of name, or -1 if it was never seen.
func (h *History) Index(name string) int {
	return indexOf(h.entries, name)
}

// Merge records the connected devices: unseen ones are appended with the
// lowest priority, known ones get their last-seen time bumped. Order of
// known entries never changes.
func (h *History) Merge(current []Device) []HistoryEntry {
	h.entries = mergeEntries(h.entries, current, h.exclude, h.now())
	h.persist()
	return h.Entries()
}

// Reorder moves the entry called name to toIndex, keeping the relative order
// of all other entries. toIndex is clamped to the list bounds.
func (h *History) Reorder(name string, toIndex int) error {
	from := indexOf(h.entries, name)
	if from < 0 {
		return fmt.Errorf("reorder %q: %w", name, ErrUnknownDevice)
	}

	h.entries = moveEntry(h.entries, from, toIndex)
	h.persist()
	return nil
}

// Clear forgets every device and immediately remembers the connected ones
// again, so hardware that is plugged in right now keeps working.
func (h *History) Clear(current []Device) []HistoryEntry {
	h.entries = nil
	h.persist()
	return h.Merge(current)
}

func (h *History) persist() {
	if err := h.store.SaveHistory(h.Entries()); err != nil {
		h.log.Errorw("save device history", "error", err)
	}
}

func mergeEntries(entries []HistoryEntry, current []Device, exclude *Exclusion, now time.Time) []HistoryEntry {
	out := make([]HistoryEntry, len(entries), len(entries)+len(current))
	copy(out, entries)

	for _, d := range current {
		if exclude.Excluded(d.Name) {
			continue
		}

		if idx := indexOf(out, d.Name); idx >= 0 {
			out[idx].LastSeen = now
			continue
		}

		out = append(out, HistoryEntry{Name: d.Name, LastSeen: now})
	}

	return out
}

func moveEntry(entries []HistoryEntry, from, to int) []HistoryEntry {
	if to < 0 {
		to = 0
	}
	if to > len(entries)-1 {
		to = len(entries) - 1
	}

	out := make([]HistoryEntry, 0, len(entries))
	moved := entries[from]
	for i, e := range entries {
		if i == from {
			continue
		}
		out = append(out, e)
	}

	out = append(out, HistoryEntry{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out
}

func dedupe(entries []HistoryEntry) []HistoryEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}
	return out
}

func indexOf(entries []HistoryEntry, name string) int {
	for i, e := range entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// IsCorrupt reports whether err means the persisted state could not be
// decoded.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
