package micboard

import (
	"context"
	"fmt"
)

type command struct {
	fn   func(ctx context.Context) error
	done chan error
}

// do runs fn on the switcher goroutine and waits for it to finish.
func (s *Switcher) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}

	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectDevice makes h the default input device right away. A manual pick
// turns auto-switching off, otherwise the switcher would undo it.
func (s *Switcher) SelectDevice(ctx context.Context, h Handle) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.selectDevice(ctx, h)
	})
}

func (s *Switcher) selectDevice(ctx context.Context, h Handle) error {
	name := nameOf(s.devices, h)
	if name == "" {
		return fmt.Errorf("select device %d: %w", h, ErrUnknownDevice)
	}

	s.stopCorrection()

	if err := s.dir.SetDefault(ctx, h); err != nil {
		return fmt.Errorf("set default device %q: %w", name, err)
	}
	s.current = h

	if s.autoSwitch {
		s.log.Infow("manual selection, disabling auto-switch", "device", name)
		s.setAutoSwitch(false)
	}

	s.telemetry.IncrementCounter(MetricSwitches)
	s.telemetry.IncrementCounter(MetricSwitchesManual)
	s.notify(fmt.Sprintf("Manually switched to %s", name))
	return nil
}

// SetAutoSwitch turns auto-switching on or off. Turning it on immediately
// moves to the best connected device.
func (s *Switcher) SetAutoSwitch(ctx context.Context, enabled bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		if enabled == s.autoSwitch {
			return nil
		}

		s.setAutoSwitch(enabled)
		s.log.Infow("auto-switch toggled", "enabled", enabled)

		if enabled {
			s.reevaluate(ctx, "auto-switch enabled", false)
		}
		return nil
	})
}

func (s *Switcher) setAutoSwitch(enabled bool) {
	s.autoSwitch = enabled
	if !enabled {
		s.stopCorrection()
	}

	if err := s.settings.SaveSettings(Settings{AutoSwitch: enabled}); err != nil {
		s.log.Errorw("save settings", "error", err)
	}
}

// ClearHistory forgets all remembered devices except the connected ones.
func (s *Switcher) ClearHistory(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.history.Clear(s.devices)
		s.telemetry.IncrementCounter(MetricHistoryClears)
		s.updateGauges()
		s.log.Infow("device history cleared", "kept", s.history.Len())
		return nil
	})
}

// MoveDevice changes the priority of a remembered device.
func (s *Switcher) MoveDevice(ctx context.Context, name string, toIndex int) error {
	return s.do(ctx, func(ctx context.Context) error {
		if err := s.history.Reorder(name, toIndex); err != nil {
			return err
		}
		s.telemetry.IncrementCounter(MetricPriorityChanges)

		if s.autoSwitch {
			s.reevaluate(ctx, "priority changed", false)
		}
		return nil
	})
}

func (s *Switcher) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func(context.Context) error {
		devices := make([]Device, len(s.devices))
		copy(devices, s.devices)

		snap = Snapshot{
			Default:    s.current,
			Devices:    devices,
			History:    s.history.Entries(),
			AutoSwitch: s.autoSwitch,
			Mode:       s.mode(),
		}
		return nil
	})
	return snap, err
}
