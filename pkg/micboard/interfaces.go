package micboard

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrCorrupt       = errors.New("persisted state is corrupt")
	ErrNotFound      = errors.New("not found")
	ErrStopped       = errors.New("switcher is not running")
)

// Handle is the platform's transient id for a connected device. It is only
// valid for the current connection; the same microphone gets a new handle
// after being replugged.
type Handle uint32

// Device is a currently connected input device.
type Device struct {
	Handle Handle
	Name   string
}

// HistoryEntry is one remembered device. The position of the entry in the
// history is its priority, index 0 being the most preferred.
type HistoryEntry struct {
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
}

type Settings struct {
	AutoSwitch bool `json:"auto_switch"`
}

func DefaultSettings() Settings {
	return Settings{AutoSwitch: true}
}

// Directory is the platform's view of audio input devices.
type Directory interface {
	InputDevices(ctx context.Context) ([]Device, error)
	Default(ctx context.Context) (Handle, error)
	SetDefault(ctx context.Context, h Handle) error
}

type Subscription interface {
	Revoke() error
}

// NotificationSource delivers hardware notifications. Callbacks may be
// invoked from any goroutine.
type NotificationSource interface {
	SubscribeDefaultChanged(cb func()) (Subscription, error)
	SubscribeDeviceSetChanged(cb func()) (Subscription, error)
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type Telemetry interface {
	IncrementCounter(name string)
	SetGauge(name string, value float64)
}

type HistoryStore interface {
	LoadHistory() ([]HistoryEntry, error)
	SaveHistory(entries []HistoryEntry) error
}

type SettingsStore interface {
	// LoadSettings returns ErrNotFound when nothing was saved yet.
	LoadSettings() (Settings, error)
	SaveSettings(settings Settings) error
}

type CounterStore interface {
	LoadCounters() (map[string]int64, error)
	SaveCounter(name string, value int64) error
}

// Store is everything micboard persists.
type Store interface {
	HistoryStore
	SettingsStore
	CounterStore
	Close() error
}
