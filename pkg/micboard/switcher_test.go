package micboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testDebounce = 20 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

type harness struct {
	dir       *fakeDirectory
	source    *fakeSource
	store     *fakeStore
	notifier  *recordingNotifier
	telemetry *recordingTelemetry
	sw        *Switcher
}

type harnessOpts struct {
	devices    []Device
	def        Handle
	history    []string
	autoSwitch *bool
}

func startSwitcher(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	source := newFakeSource()
	dir := &fakeDirectory{devices: opts.devices, def: opts.def, source: source}
	store := &fakeStore{history: historyOf(opts.history...)}
	if opts.autoSwitch != nil {
		store.settings = &Settings{AutoSwitch: *opts.autoSwitch}
	}

	exclude, err := NewExclusion(DefaultExcludePattern)
	require.NoError(t, err)

	log := zaptest.NewLogger(t).Sugar()
	h := &harness{
		dir:       dir,
		source:    source,
		store:     store,
		notifier:  &recordingNotifier{},
		telemetry: newRecordingTelemetry(),
	}
	h.sw = NewSwitcher(SwitcherConfig{
		Directory: dir,
		Source:    source,
		History:   NewHistory(store, exclude, log),
		Settings:  store,
		Exclude:   exclude,
		Notifier:  h.notifier,
		Telemetry: h.telemetry,
		Log:       log,
		Debounce:  testDebounce,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sw.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(waitFor):
			t.Error("switcher did not stop")
		}
	})

	// The first snapshot is served only after start-up is done.
	h.snapshot(t)
	return h
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	snap, err := h.sw.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

// peek is safe to call from require.Eventually conditions, which run on
// their own goroutine.
func (h *harness) peek() Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	snap, _ := h.sw.Snapshot(ctx)
	return snap
}

func (h *harness) waitForDefault(t *testing.T, want Handle) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.peek().Default == want
	}, waitFor, tick)
}

// settle waits long enough for any pending correction to have fired.
func settle() {
	time.Sleep(5 * testDebounce)
}

func boolPtr(b bool) *bool { return &b }

func TestSwitchesToHigherPriorityDeviceOnConnect(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{2, "B"}, {3, "C"}},
		def:     2,
		history: []string{"A", "B", "C"},
	})
	require.Empty(t, h.dir.calls(), "B is already the best connected device")

	h.dir.plug(Device{Handle: 1, Name: "A"})

	h.waitForDefault(t, 1)
	settle()

	assert.Equal(t, []Handle{1}, h.dir.calls())
	assert.Equal(t, []string{
		"New microphone detected: A",
		"Switched to A",
	}, h.notifier.all())
	assert.Equal(t, 1, h.telemetry.counter(MetricSwitchesAuto))
	assert.Equal(t, 1, h.telemetry.counter(MetricSwitches))
}

func TestCorrectsPlatformChoiceAfterDebounce(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}},
		def:     1,
		history: []string{"A", "B"},
	})

	h.dir.platformSwitch(2)

	require.Eventually(t, func() bool {
		return len(h.dir.calls()) == 1
	}, waitFor, tick)
	settle()

	assert.Equal(t, []Handle{1}, h.dir.calls())
	assert.Equal(t, []string{"Switched to A"}, h.notifier.all(), "only the final device is announced")
	assert.Equal(t, Synced, h.snapshot(t).Mode)
}

func TestCorrectionIsNotStackedByRepeatedChanges(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}, {3, "C"}},
		def:     1,
		history: []string{"A", "B", "C"},
	})

	h.dir.platformSwitch(2)
	h.dir.platformSwitch(3)
	h.dir.platformSwitch(2)

	require.Eventually(t, func() bool {
		return len(h.dir.calls()) >= 1
	}, waitFor, tick)
	settle()

	assert.Equal(t, []Handle{1}, h.dir.calls())
	assert.Equal(t, []string{"Switched to A"}, h.notifier.all())
}

func TestNoSwitchWhenDefaultIsAlreadyBest(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}},
		def:     1,
		history: []string{"A", "B"},
	})

	h.dir.plug(Device{Handle: 5, Name: "Brand New Webcam"})

	require.Eventually(t, func() bool {
		return len(h.peek().History) == 3
	}, waitFor, tick)
	settle()

	assert.Empty(t, h.dir.calls())
	assert.Equal(t, []string{"New microphone detected: Brand New Webcam"}, h.notifier.all())
	assert.Equal(t, []string{"A", "B", "Brand New Webcam"}, h.store.names())
}

func TestFallsBackWhenDefaultDisappears(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}, {3, "C"}},
		def:     1,
		history: []string{"A", "C", "B"},
	})

	h.dir.unplug(1)

	h.waitForDefault(t, 3)
	settle()

	assert.Equal(t, []Handle{3}, h.dir.calls())
	assert.Equal(t, []string{
		"Microphone no longer available: A",
		"Switched to C",
	}, h.notifier.all())
	assert.Equal(t, float64(2), h.telemetry.gauge(MetricConnectedDevices))
}

func TestManualSelectionDisablesAutoSwitch(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}},
		def:     1,
		history: []string{"A", "B"},
	})
	require.True(t, h.snapshot(t).AutoSwitch)

	require.NoError(t, h.sw.SelectDevice(context.Background(), 2))
	settle()

	snap := h.snapshot(t)
	assert.False(t, snap.AutoSwitch)
	assert.Equal(t, IdleDisabled, snap.Mode)
	assert.Equal(t, Handle(2), snap.Default)
	assert.Equal(t, []Handle{2}, h.dir.calls(), "manual choice must not be corrected")
	assert.Equal(t, []string{"Manually switched to B"}, h.notifier.all())

	enabled, saved := h.store.autoSwitch()
	assert.True(t, saved)
	assert.False(t, enabled)
	assert.Equal(t, 1, h.telemetry.counter(MetricSwitchesManual))
}

func TestManualSelectionOfUnknownHandle(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}},
		def:     1,
	})

	err := h.sw.SelectDevice(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownDevice)
	assert.True(t, h.snapshot(t).AutoSwitch)
}

func TestDisabledAutoSwitchOnlyTracks(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices:    []Device{{1, "A"}, {2, "B"}},
		def:        2,
		history:    []string{"A", "B"},
		autoSwitch: boolPtr(false),
	})

	h.dir.platformSwitch(1)
	h.waitForDefault(t, 1)
	h.dir.platformSwitch(2)
	h.waitForDefault(t, 2)
	settle()

	assert.Empty(t, h.dir.calls())
	assert.Equal(t, []string{
		"Microphone switched to A",
		"Microphone switched to B",
	}, h.notifier.all())
}

func TestEnablingAutoSwitchMovesToBest(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices:    []Device{{1, "A"}, {2, "B"}},
		def:        2,
		history:    []string{"A", "B"},
		autoSwitch: boolPtr(false),
	})

	require.NoError(t, h.sw.SetAutoSwitch(context.Background(), true))

	h.waitForDefault(t, 1)
	assert.Equal(t, []Handle{1}, h.dir.calls())
	enabled, _ := h.store.autoSwitch()
	assert.True(t, enabled)
}

func TestStartupSelectsBestDevice(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}},
		def:     2,
		history: []string{"A", "B"},
	})

	h.waitForDefault(t, 1)
	assert.Equal(t, []Handle{1}, h.dir.calls())
	assert.Equal(t, 1, h.telemetry.counter(MetricAppLaunches))
}

func TestExcludedDeviceIsNeverPicked(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{2, "B"}},
		def:     2,
		history: []string{"B"},
	})

	h.dir.plug(Device{Handle: 7, Name: "iPhone Microphone"})

	require.Eventually(t, func() bool {
		return len(h.peek().Devices) == 2
	}, waitFor, tick)
	settle()

	assert.Empty(t, h.dir.calls())
	assert.Equal(t, []string{"B"}, h.store.names())
}

func TestFailedSwitchKeepsBelief(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{2, "B"}},
		def:     2,
		history: []string{"A", "B"},
	})
	h.dir.failSetDefault(errors.New("device vanished"))

	h.dir.plug(Device{Handle: 1, Name: "A"})

	require.Eventually(t, func() bool {
		return len(h.dir.calls()) == 1
	}, waitFor, tick)
	settle()

	assert.Equal(t, Handle(2), h.snapshot(t).Default)
	assert.Equal(t, []string{"New microphone detected: A"}, h.notifier.all())
}

func TestPendingCorrectionSurvivesUnrelatedUnplug(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}, {3, "C"}},
		def:     1,
		history: []string{"A", "B", "C"},
	})

	h.dir.platformSwitch(2)
	h.dir.unplug(3)

	h.waitForDefault(t, 1)
	time.Sleep(10 * testDebounce)

	assert.Equal(t, []Handle{1}, h.dir.calls())
	assert.Equal(t, Handle(1), h.snapshot(t).Default)
	assert.Equal(t, Synced, h.snapshot(t).Mode)
	assert.Contains(t, h.notifier.all(), "Switched to A")
}

func TestUnplugDuringCorrectionAnnouncesFinalDevice(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}},
		def:     1,
		history: []string{"A", "B"},
	})

	// The platform moves away from A, then A goes away before the correction
	// fires, leaving B as the best choice after all.
	h.dir.platformSwitch(2)
	h.dir.unplug(1)

	require.Eventually(t, func() bool {
		return len(h.peek().Devices) == 1
	}, waitFor, tick)
	settle()

	assert.Empty(t, h.dir.calls())
	assert.Equal(t, Handle(2), h.snapshot(t).Default)
	assert.Equal(t, []string{
		"Microphone no longer available: A",
		"Microphone switched to B",
	}, h.notifier.all())
}

func TestFailedSwitchIsRetriedOnNextDeviceChange(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{2, "B"}},
		def:     2,
		history: []string{"A", "B", "D"},
	})
	h.dir.failSetDefault(errors.New("device vanished"))

	h.dir.plug(Device{Handle: 1, Name: "A"})
	require.Eventually(t, func() bool {
		return len(h.dir.calls()) == 1
	}, waitFor, tick)
	settle()
	require.Equal(t, Handle(2), h.snapshot(t).Default)

	h.dir.failSetDefault(nil)
	h.dir.plug(Device{Handle: 4, Name: "D"})

	h.waitForDefault(t, 1)
	settle()

	assert.Equal(t, []Handle{1, 1}, h.dir.calls())
	assert.Equal(t, 1, h.telemetry.counter(MetricSwitchesAuto))
}

func TestNotificationFailureDoesNotStopSwitching(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{2, "B"}},
		def:     2,
		history: []string{"A", "B"},
	})
	h.notifier.lock.Lock()
	h.notifier.err = errors.New("no notification daemon")
	h.notifier.lock.Unlock()

	h.dir.plug(Device{Handle: 1, Name: "A"})

	h.waitForDefault(t, 1)
}

func TestClearHistoryKeepsConnectedDevices(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}},
		def:     1,
		history: []string{"A", "B"},
	})

	require.NoError(t, h.sw.ClearHistory(context.Background()))

	assert.Equal(t, []string{"A"}, h.store.names())
	assert.Equal(t, []string{"A"}, entryNames(h.snapshot(t).History))
	assert.Equal(t, 1, h.telemetry.counter(MetricHistoryClears))
	assert.Equal(t, float64(1), h.telemetry.gauge(MetricHistoryDevices))
}

func TestMoveDeviceReevaluates(t *testing.T) {
	h := startSwitcher(t, harnessOpts{
		devices: []Device{{1, "A"}, {2, "B"}},
		def:     1,
		history: []string{"A", "B"},
	})

	require.NoError(t, h.sw.MoveDevice(context.Background(), "B", 0))

	h.waitForDefault(t, 2)
	assert.Equal(t, []string{"B", "A"}, h.store.names())
	assert.Equal(t, 1, h.telemetry.counter(MetricPriorityChanges))

	err := h.sw.MoveDevice(context.Background(), "Z", 0)
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestCommandsAfterStop(t *testing.T) {
	source := newFakeSource()
	dir := &fakeDirectory{source: source}
	store := &fakeStore{}
	sw := NewSwitcher(SwitcherConfig{
		Directory: dir,
		Source:    source,
		History:   NewHistory(store, nil, zaptest.NewLogger(t).Sugar()),
		Settings:  store,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sw.Run(ctx), context.Canceled)
	assert.Equal(t, 0, source.active(), "subscriptions must be revoked on shutdown")

	_, err := sw.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)

	assert.Error(t, sw.Run(context.Background()), "run twice")
}
