package pulse

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

var eventRe = regexp.MustCompile(`^Event '([\w-]+)' on ([\w-]+)(?: #(\d+))?$`)

// parseEvent maps a `pactl subscribe` line to the notification it stands for.
// Lines that do not matter for input device selection return false.
func parseEvent(line string) (micboard.EventKind, bool) {
	m := eventRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	action, facility := m[1], m[2]
	switch facility {
	case "source", "card":
		if action == "new" || action == "remove" {
			return micboard.DeviceSetChanged, true
		}
	case "server":
		if action == "change" {
			return micboard.DefaultChanged, true
		}
	}

	return 0, false
}

const (
	defaultRestartDelay    = 500 * time.Millisecond
	defaultMaxRestartDelay = 30 * time.Second
	defaultMaxRestarts     = 5
	defaultRestartWindow   = 5 * time.Minute
)

type subscriber struct {
	kind micboard.EventKind
	cb   func()
}

// Monitor is a micboard.NotificationSource fed by `pactl subscribe`. When
// pactl exits, for example because the sound server restarted, it is started
// again with an exponentially growing delay. More than MaxRestarts restarts
// within RestartWindow make Run give up.
type Monitor struct {
	Path string

	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	MaxRestarts     int
	RestartWindow   time.Duration

	log *zap.SugaredLogger

	lock   sync.Mutex
	nextID int
	subs   map[int]subscriber

	restarts []time.Time
}

func NewMonitor(path string, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		Path:            path,
		RestartDelay:    defaultRestartDelay,
		MaxRestartDelay: defaultMaxRestartDelay,
		MaxRestarts:     defaultMaxRestarts,
		RestartWindow:   defaultRestartWindow,
		log:             log,
		subs:            make(map[int]subscriber),
	}
}

func (m *Monitor) SubscribeDefaultChanged(cb func()) (micboard.Subscription, error) {
	return m.subscribe(micboard.DefaultChanged, cb), nil
}

func (m *Monitor) SubscribeDeviceSetChanged(cb func()) (micboard.Subscription, error) {
	return m.subscribe(micboard.DeviceSetChanged, cb), nil
}

func (m *Monitor) subscribe(kind micboard.EventKind, cb func()) micboard.Subscription {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = subscriber{kind: kind, cb: cb}

	return revoker(func() error {
		m.lock.Lock()
		defer m.lock.Unlock()
		delete(m.subs, id)
		return nil
	})
}

type revoker func() error

func (r revoker) Revoke() error { return r() }

func (m *Monitor) dispatch(kind micboard.EventKind) {
	m.lock.Lock()
	var cbs []func()
	for _, s := range m.subs {
		if s.kind == kind {
			cbs = append(cbs, s.cb)
		}
	}
	m.lock.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// Run reads events until ctx is cancelled or pactl keeps exiting.
func (m *Monitor) Run(ctx context.Context) error {
	resync := false
	for {
		err := m.listen(ctx, resync)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !m.shouldRestart(time.Now()) {
			return errors.Join(ErrNotRunning, err)
		}

		delay := m.restartDelay()
		m.log.Warnw("pactl subscribe stopped, restarting",
			"error", err,
			"attempt", len(m.restarts),
			"delay", delay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		resync = true
	}
}

// listen runs one `pactl subscribe` until it stops. After a restart both
// notifications are raised once, since anything could have changed while
// nobody was listening.
func (m *Monitor) listen(ctx context.Context, resync bool) error {
	client, err := Connect(ctx, m.Path)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	m.log.Debug("listening for pactl events")

	if resync {
		m.dispatch(micboard.DeviceSetChanged)
		m.dispatch(micboard.DefaultChanged)
	}

	for {
		line, err := client.ReadLine()
		if err != nil {
			return err
		}

		kind, ok := parseEvent(line)
		if !ok {
			continue
		}

		m.log.Debugw("pactl event", "line", line, "kind", kind)
		m.dispatch(kind)
	}
}

// shouldRestart forgets restarts older than RestartWindow and records a new
// one if the limit allows it.
func (m *Monitor) shouldRestart(now time.Time) bool {
	recent := m.restarts[:0]
	for _, at := range m.restarts {
		if now.Sub(at) < m.RestartWindow {
			recent = append(recent, at)
		}
	}
	m.restarts = recent

	if len(m.restarts) >= m.MaxRestarts {
		return false
	}
	m.restarts = append(m.restarts, now)
	return true
}

func (m *Monitor) restartDelay() time.Duration {
	delay := m.RestartDelay
	for i := 1; i < len(m.restarts) && delay < m.MaxRestartDelay; i++ {
		delay *= 2
	}
	if delay > m.MaxRestartDelay {
		delay = m.MaxRestartDelay
	}
	return delay
}
