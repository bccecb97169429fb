package micboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Listener turns platform callbacks, which may arrive on any goroutine, into
// one ordered queue that a single consumer drains. The queue is unbounded and
// never drops a default change. A device set change that arrives while
// another one is still queued is folded into it, since handling one re-reads
// the whole device set anyway.
type Listener struct {
	source NotificationSource
	dir    Directory
	log    *zap.SugaredLogger

	lock      sync.Mutex
	queue     []EventKind
	setQueued bool
	subs      []Subscription
	started   bool
	closed    bool
	ready     chan struct{}
}

func NewListener(source NotificationSource, dir Directory, log *zap.SugaredLogger) *Listener {
	return &Listener{
		source: source,
		dir:    dir,
		log:    log,
		ready:  make(chan struct{}, 1),
	}
}

// Start subscribes to both notification classes.
func (l *Listener) Start() error {
	l.lock.Lock()
	if l.started {
		l.lock.Unlock()
		return errors.New("listener already started")
	}
	l.started = true
	l.lock.Unlock()

	defaultSub, err := l.source.SubscribeDefaultChanged(func() { l.enqueue(DefaultChanged) })
	if err != nil {
		return fmt.Errorf("subscribe default changes: %w", err)
	}

	setSub, err := l.source.SubscribeDeviceSetChanged(func() { l.enqueue(DeviceSetChanged) })
	if err != nil {
		if revokeErr := defaultSub.Revoke(); revokeErr != nil {
			l.log.Warnw("revoke default change subscription", "error", revokeErr)
		}
		return fmt.Errorf("subscribe device set changes: %w", err)
	}

	l.lock.Lock()
	l.subs = append(l.subs, defaultSub, setSub)
	l.lock.Unlock()

	return nil
}

// Close revokes the subscriptions. Notifications delivered afterwards are
// ignored. Calling Close more than once is harmless.
func (l *Listener) Close() error {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		return nil
	}
	l.closed = true
	subs := l.subs
	l.subs = nil
	l.queue = nil
	l.setQueued = false
	l.lock.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Revoke(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Ready is signalled whenever the queue becomes non-empty.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Drain takes everything queued, in delivery order.
func (l *Listener) Drain() []EventKind {
	l.lock.Lock()
	defer l.lock.Unlock()

	kinds := l.queue
	l.queue = nil
	l.setQueued = false
	return kinds
}

// Resolve reads the platform state an event refers to. It is called by the
// consumer right before handling, so the state is as fresh as possible.
func (l *Listener) Resolve(ctx context.Context, kind EventKind) (Event, error) {
	switch kind {
	case DefaultChanged:
		h, err := l.dir.Default(ctx)
		if err != nil {
			return Event{}, fmt.Errorf("get default device: %w", err)
		}
		return Event{Kind: kind, Default: h}, nil

	case DeviceSetChanged:
		devices, err := l.dir.InputDevices(ctx)
		if err != nil {
			return Event{}, fmt.Errorf("list input devices: %w", err)
		}
		return Event{Kind: kind, Devices: devices}, nil
	}

	return Event{}, fmt.Errorf("unknown event kind %v", kind)
}

func (l *Listener) enqueue(kind EventKind) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.closed {
		return
	}

	if kind == DeviceSetChanged {
		if l.setQueued {
			l.log.Debugw("coalesced device set change")
			return
		}
		l.setQueued = true
	}

	l.queue = append(l.queue, kind)

	select {
	case l.ready <- struct{}{}:
	default:
	}
}
