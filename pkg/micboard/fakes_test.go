package micboard

import (
	"context"
	"errors"
	"sync"
)

// fakeDirectory behaves like a tiny audio server: SetDefault changes the
// default and, when wired to a source, emits a default change notification.
type fakeDirectory struct {
	lock     sync.Mutex
	devices  []Device
	def      Handle
	setCalls []Handle
	setErr   error
	listErr  error
	source   *fakeSource
}

func (d *fakeDirectory) InputDevices(context.Context) ([]Device, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.listErr != nil {
		return nil, d.listErr
	}
	out := make([]Device, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

func (d *fakeDirectory) Default(context.Context) (Handle, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.def, nil
}

func (d *fakeDirectory) SetDefault(_ context.Context, h Handle) error {
	d.lock.Lock()
	d.setCalls = append(d.setCalls, h)
	if d.setErr != nil {
		err := d.setErr
		d.lock.Unlock()
		return err
	}
	changed := d.def != h
	d.def = h
	source := d.source
	d.lock.Unlock()

	if changed && source != nil {
		source.fireDefault()
	}
	return nil
}

// platformSwitch simulates the OS changing the default on its own.
func (d *fakeDirectory) platformSwitch(h Handle) {
	d.lock.Lock()
	d.def = h
	source := d.source
	d.lock.Unlock()

	if source != nil {
		source.fireDefault()
	}
}

func (d *fakeDirectory) plug(dev Device) {
	d.lock.Lock()
	d.devices = append(d.devices, dev)
	source := d.source
	d.lock.Unlock()

	if source != nil {
		source.fireSet()
	}
}

func (d *fakeDirectory) unplug(h Handle) {
	d.lock.Lock()
	out := d.devices[:0]
	for _, dev := range d.devices {
		if dev.Handle != h {
			out = append(out, dev)
		}
	}
	d.devices = out
	source := d.source
	d.lock.Unlock()

	if source != nil {
		source.fireSet()
	}
}

func (d *fakeDirectory) calls() []Handle {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]Handle, len(d.setCalls))
	copy(out, d.setCalls)
	return out
}

func (d *fakeDirectory) failSetDefault(err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.setErr = err
}

type fakeSource struct {
	lock       sync.Mutex
	next       int
	defaultCbs map[int]func()
	setCbs     map[int]func()
	revoked    int
	setErr     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		defaultCbs: make(map[int]func()),
		setCbs:     make(map[int]func()),
	}
}

func (s *fakeSource) SubscribeDefaultChanged(cb func()) (Subscription, error) {
	return s.subscribe(s.defaultCbs, cb), nil
}

func (s *fakeSource) SubscribeDeviceSetChanged(cb func()) (Subscription, error) {
	s.lock.Lock()
	err := s.setErr
	s.lock.Unlock()
	if err != nil {
		return nil, err
	}
	return s.subscribe(s.setCbs, cb), nil
}

func (s *fakeSource) subscribe(cbs map[int]func(), cb func()) Subscription {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.next
	s.next++
	cbs[id] = cb

	return fakeSubscription(func() error {
		s.lock.Lock()
		defer s.lock.Unlock()
		if _, ok := cbs[id]; !ok {
			return errors.New("already revoked")
		}
		delete(cbs, id)
		s.revoked++
		return nil
	})
}

func (s *fakeSource) fireDefault() { s.fire(s.defaultCbs) }
func (s *fakeSource) fireSet()     { s.fire(s.setCbs) }

func (s *fakeSource) fire(cbs map[int]func()) {
	s.lock.Lock()
	var fns []func()
	for _, cb := range cbs {
		fns = append(fns, cb)
	}
	s.lock.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *fakeSource) active() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.defaultCbs) + len(s.setCbs)
}

type fakeSubscription func() error

func (f fakeSubscription) Revoke() error { return f() }

type fakeStore struct {
	lock       sync.Mutex
	history    []HistoryEntry
	historyErr error
	settings   *Settings
	saves      int
}

func (s *fakeStore) LoadHistory() ([]HistoryEntry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out, nil
}

func (s *fakeStore) SaveHistory(entries []HistoryEntry) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.history = make([]HistoryEntry, len(entries))
	copy(s.history, entries)
	s.historyErr = nil
	s.saves++
	return nil
}

func (s *fakeStore) LoadSettings() (Settings, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.settings == nil {
		return Settings{}, ErrNotFound
	}
	return *s.settings, nil
}

func (s *fakeStore) SaveSettings(settings Settings) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.settings = &settings
	return nil
}

func (s *fakeStore) names() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return entryNames(s.history)
}

func (s *fakeStore) autoSwitch() (bool, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.settings == nil {
		return false, false
	}
	return s.settings.AutoSwitch, true
}

type recordingNotifier struct {
	lock     sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, message string) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.messages = append(n.messages, message)
	return n.err
}

func (n *recordingNotifier) all() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

func (n *recordingNotifier) reset() {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.messages = nil
}

type recordingTelemetry struct {
	lock     sync.Mutex
	counters map[string]int
	gauges   map[string]float64
}

func newRecordingTelemetry() *recordingTelemetry {
	return &recordingTelemetry{
		counters: make(map[string]int),
		gauges:   make(map[string]float64),
	}
}

func (r *recordingTelemetry) IncrementCounter(name string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.counters[name]++
}

func (r *recordingTelemetry) SetGauge(name string, value float64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.gauges[name] = value
}

func (r *recordingTelemetry) counter(name string) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counters[name]
}

func (r *recordingTelemetry) gauge(name string) float64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.gauges[name]
}

func entryNames(entries []HistoryEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func historyOf(names ...string) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, HistoryEntry{Name: n})
	}
	return entries
}
