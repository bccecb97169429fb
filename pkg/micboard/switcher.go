package micboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultDebounce is how long the switcher lets the platform settle after it
// picked a default on its own before correcting it. Correcting right away
// races the platform's own transition and can ping-pong forever.
const DefaultDebounce = 500 * time.Millisecond

type SwitcherConfig struct {
	Directory Directory
	Source    NotificationSource
	History   *History
	Settings  SettingsStore
	Exclude   *Exclusion
	Notifier  Notifier
	Telemetry Telemetry
	Log       *zap.SugaredLogger
	Debounce  time.Duration
}

// Switcher keeps the default input device on the most preferred connected
// device. All of its state is owned by the goroutine running Run; hardware
// notifications reach it through a Listener and user commands through a
// channel, so no two handlers ever run at the same time.
type Switcher struct {
	dir       Directory
	listener  *Listener
	history   *History
	settings  SettingsStore
	exclude   *Exclusion
	notifier  Notifier
	telemetry Telemetry
	log       *zap.SugaredLogger
	debounce  time.Duration

	running  atomic.Bool
	commands chan command
	stopped  chan struct{}

	current    Handle
	devices    []Device
	previous   map[Handle]struct{}
	autoSwitch bool
	correction *time.Timer
}

func NewSwitcher(cfg SwitcherConfig) *Switcher {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var notifier Notifier = nopNotifier{}
	if cfg.Notifier != nil {
		notifier = cfg.Notifier
	}

	var telemetry Telemetry = nopTelemetry{}
	if cfg.Telemetry != nil {
		telemetry = cfg.Telemetry
	}

	return &Switcher{
		dir:        cfg.Directory,
		listener:   NewListener(cfg.Source, cfg.Directory, log.Named("listener")),
		history:    cfg.History,
		settings:   cfg.Settings,
		exclude:    cfg.Exclude,
		notifier:   notifier,
		telemetry:  telemetry,
		log:        log,
		debounce:   debounce,
		commands:   make(chan command),
		stopped:    make(chan struct{}),
		previous:   make(map[Handle]struct{}),
		autoSwitch: true,
	}
}

// Run subscribes to hardware notifications and handles them until ctx is
// done. It can only be called once.
func (s *Switcher) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("switcher already running")
	}
	defer close(s.stopped)

	if err := s.listener.Start(); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	defer func() {
		if err := s.listener.Close(); err != nil {
			s.log.Warnw("close listener", "error", err)
		}
	}()
	defer s.stopCorrection()

	s.init(ctx)

	s.telemetry.IncrementCounter(MetricAppLaunches)
	defer s.telemetry.IncrementCounter(MetricAppTerminations)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.listener.Ready():
			for _, kind := range s.listener.Drain() {
				ev, err := s.listener.Resolve(ctx, kind)
				if err != nil {
					s.log.Warnw("skipping event", "event", kind, "error", err)
					continue
				}
				s.handleEvent(ctx, ev)
			}

		case <-s.correctionC():
			s.correct(ctx)

		case cmd := <-s.commands:
			cmd.done <- cmd.fn(ctx)
		}
	}
}

func (s *Switcher) init(ctx context.Context) {
	settings, err := s.settings.LoadSettings()
	switch {
	case errors.Is(err, ErrNotFound):
		settings = DefaultSettings()
	case err != nil:
		s.log.Warnw("load settings, using defaults", "error", err)
		settings = DefaultSettings()
	}
	s.autoSwitch = settings.AutoSwitch

	s.history.Load()

	devices, err := s.dir.InputDevices(ctx)
	if err != nil {
		s.log.Warnw("list input devices", "error", err)
	}
	s.devices = devices
	s.previous = handleSet(devices)

	current, err := s.dir.Default(ctx)
	if err != nil {
		s.log.Warnw("get default input device", "error", err)
	}
	s.current = current

	s.history.Merge(devices)
	s.updateGauges()

	s.log.Infow("tracking input devices",
		"devices", len(devices),
		"default", nameOf(devices, current),
		"auto_switch", s.autoSwitch,
		"history", s.history.Len(),
	)

	if s.autoSwitch {
		s.reevaluate(ctx, "startup", false)
	}
}

func (s *Switcher) handleEvent(ctx context.Context, ev Event) {
	s.log.Debugw("handling event", "event", ev.Kind, "default", ev.Default, "devices", len(ev.Devices))

	switch ev.Kind {
	case DefaultChanged:
		s.handleDefaultChanged(ev.Default)
	case DeviceSetChanged:
		s.handleDeviceSetChanged(ctx, ev.Devices)
	}
}

func (s *Switcher) handleDefaultChanged(h Handle) {
	// Our own switches land here with the handle we already believe in.
	if h == s.current {
		return
	}
	s.current = h
	name := s.displayName(h)

	if !s.autoSwitch {
		s.notify(fmt.Sprintf("Microphone switched to %s", name))
		return
	}

	best, ok := s.best(s.devices)
	if !ok || best.Handle == h {
		s.stopCorrection()
		s.notify(fmt.Sprintf("Microphone switched to %s", name))
		return
	}

	s.log.Infow("default moved to a less preferred device, correcting",
		"device", name,
		"preferred", best.Name,
		"after", s.debounce,
	)
	s.scheduleCorrection()
}

func (s *Switcher) handleDeviceSetChanged(ctx context.Context, devices []Device) {
	// A pending correction is superseded by the recomputation below.
	pending := s.correction != nil
	s.stopCorrection()

	newSet := handleSet(devices)

	var removed, added []Device
	for _, d := range s.devices {
		if _, ok := newSet[d.Handle]; !ok {
			removed = append(removed, d)
		}
	}
	for _, d := range devices {
		if _, ok := s.previous[d.Handle]; !ok {
			added = append(added, d)
		}
	}

	entries := s.history.Entries()
	currentName := nameOf(s.devices, s.current)

	s.devices = devices
	s.previous = newSet

	for _, d := range removed {
		s.log.Infow("input device removed", "device", d.Name, "handle", d.Handle)
		s.notify(fmt.Sprintf("Microphone no longer available: %s", d.Name))
	}
	for _, d := range added {
		s.log.Infow("input device added",
			"device", d.Name,
			"handle", d.Handle,
			"outranks_default", !s.exclude.Excluded(d.Name) && ShouldAutoSwitch(entries, d.Name, currentName),
		)
		s.notify(fmt.Sprintf("New microphone detected: %s", d.Name))
	}

	_, stillConnected := newSet[s.current]
	switch {
	case s.autoSwitch:
		s.reevaluate(ctx, setChangeReason(added, stillConnected), pending || !stillConnected)
	case !stillConnected:
		s.current = s.platformDefault(ctx)
	}

	s.history.Merge(devices)
	s.updateGauges()
}

// reevaluate compares the best connected device against the actual platform
// default and switches when they differ. announce reports the final device
// even when no switch was needed.
func (s *Switcher) reevaluate(ctx context.Context, reason string, announce bool) {
	actual := s.platformDefault(ctx)

	best, ok := s.best(s.devices)
	if !ok {
		s.current = actual
		return
	}

	if best.Handle == actual {
		s.current = actual
		if announce {
			s.notify(fmt.Sprintf("Microphone switched to %s", best.Name))
		}
		return
	}

	s.autoSwitchTo(ctx, best, reason)
}

func setChangeReason(added []Device, defaultConnected bool) string {
	switch {
	case !defaultConnected:
		return "default device disconnected"
	case len(added) > 0:
		return "device connected"
	}
	return "device set changed"
}

func (s *Switcher) correct(ctx context.Context) {
	s.correction = nil

	if !s.autoSwitch {
		return
	}

	devices, err := s.dir.InputDevices(ctx)
	if err != nil {
		s.log.Warnw("list input devices for correction", "error", err)
		return
	}

	actual, err := s.dir.Default(ctx)
	if err != nil {
		s.log.Warnw("get default input device for correction", "error", err)
		return
	}
	s.current = actual

	best, ok := s.best(devices)
	if !ok {
		return
	}

	if best.Handle == actual {
		s.notify(fmt.Sprintf("Microphone switched to %s", best.Name))
		return
	}

	if !s.autoSwitchTo(ctx, best, "correction") {
		s.notify(fmt.Sprintf("Microphone switched to %s", s.displayName(actual)))
	}
}

func (s *Switcher) autoSwitchTo(ctx context.Context, d Device, reason string) bool {
	if err := s.dir.SetDefault(ctx, d.Handle); err != nil {
		s.log.Warnw("set default input device", "device", d.Name, "handle", d.Handle, "error", err)
		return false
	}
	s.current = d.Handle

	s.telemetry.IncrementCounter(MetricSwitches)
	s.telemetry.IncrementCounter(MetricSwitchesAuto)
	s.log.Infow("switched input device", "device", d.Name, "handle", d.Handle, "reason", reason)
	s.notify(fmt.Sprintf("Switched to %s", d.Name))
	return true
}

func (s *Switcher) best(devices []Device) (Device, bool) {
	return FindBestDevice(s.history.Entries(), devices, s.exclude)
}

func (s *Switcher) platformDefault(ctx context.Context) Handle {
	h, err := s.dir.Default(ctx)
	if err != nil {
		s.log.Warnw("get default input device", "error", err)
		return s.current
	}
	return h
}

func (s *Switcher) scheduleCorrection() {
	if s.correction != nil {
		s.correction.Stop()
	}
	s.correction = time.NewTimer(s.debounce)
}

func (s *Switcher) stopCorrection() {
	if s.correction != nil {
		s.correction.Stop()
		s.correction = nil
	}
}

func (s *Switcher) correctionC() <-chan time.Time {
	if s.correction == nil {
		return nil
	}
	return s.correction.C
}

func (s *Switcher) mode() Mode {
	switch {
	case !s.autoSwitch:
		return IdleDisabled
	case s.correction != nil:
		return Correcting
	}
	return Synced
}

func (s *Switcher) displayName(h Handle) string {
	if name := nameOf(s.devices, h); name != "" {
		return name
	}
	return "Unknown"
}

func (s *Switcher) notify(message string) {
	// Runs on the event loop, so Notify must not block.
	if err := s.notifier.Notify(context.Background(), message); err != nil {
		s.log.Warnw("deliver notification", "message", message, "error", err)
	}
}

func (s *Switcher) updateGauges() {
	s.telemetry.SetGauge(MetricConnectedDevices, float64(len(s.devices)))
	s.telemetry.SetGauge(MetricHistoryDevices, float64(s.history.Len()))
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) error { return nil }

type nopTelemetry struct{}

func (nopTelemetry) IncrementCounter(string)  {}
func (nopTelemetry) SetGauge(string, float64) {}
