package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"go.uber.org/zap"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

const (
	ServiceName = "dev.micboard.Controller"
	ObjectPath  = dbus.ObjectPath("/dev/micboard/Controller")
	Interface   = ServiceName

	ErrUnknownDeviceName = "dev.micboard.Error.UnknownDevice"
	ErrStoppedName       = "dev.micboard.Error.Stopped"
	ErrFailedName        = "dev.micboard.Error.Failed"

	callTimeout = 10 * time.Second
)

// Switcher is what the control service drives.
type Switcher interface {
	Snapshot(ctx context.Context) (micboard.Snapshot, error)
	SelectDevice(ctx context.Context, h micboard.Handle) error
	SetAutoSwitch(ctx context.Context, enabled bool) error
	ClearHistory(ctx context.Context) error
	MoveDevice(ctx context.Context, name string, toIndex int) error
}

// handler holds the methods exported on the bus. godbus exports every
// method whose last return value is *dbus.Error.
type handler struct {
	ctx       context.Context
	sw        Switcher
	telemetry micboard.Telemetry
	log       *zap.SugaredLogger
}

func dbusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}

	name := ErrFailedName
	switch {
	case errors.Is(err, micboard.ErrUnknownDevice):
		name = ErrUnknownDeviceName
	case errors.Is(err, micboard.ErrStopped):
		name = ErrStoppedName
	}

	return dbus.NewError(name, []interface{}{err.Error()})
}

func (h *handler) call(method string, fn func(ctx context.Context) error) *dbus.Error {
	ctx, cancel := context.WithTimeout(h.ctx, callTimeout)
	defer cancel()

	err := fn(ctx)
	if err != nil {
		h.log.Warnw("control call failed", "method", method, "error", err)
	} else {
		h.log.Debugw("control call", "method", method)
	}
	return dbusError(err)
}

// List returns the device rows, whether auto-switching is on and the
// switcher mode.
func (h *handler) List() ([]Row, bool, string, *dbus.Error) {
	var snap micboard.Snapshot
	dErr := h.call("List", func(ctx context.Context) error {
		var err error
		snap, err = h.sw.Snapshot(ctx)
		return err
	})
	if dErr != nil {
		return nil, false, "", dErr
	}

	h.telemetry.IncrementCounter(micboard.MetricSettingsOpened)
	return BuildRows(snap), snap.AutoSwitch, snap.Mode.String(), nil
}

func (h *handler) Select(handle uint32) *dbus.Error {
	return h.call("Select", func(ctx context.Context) error {
		return h.sw.SelectDevice(ctx, micboard.Handle(handle))
	})
}

func (h *handler) SetAutoSwitch(enabled bool) *dbus.Error {
	return h.call("SetAutoSwitch", func(ctx context.Context) error {
		return h.sw.SetAutoSwitch(ctx, enabled)
	})
}

func (h *handler) ClearHistory() *dbus.Error {
	return h.call("ClearHistory", func(ctx context.Context) error {
		return h.sw.ClearHistory(ctx)
	})
}

func (h *handler) Move(name string, toIndex int32) *dbus.Error {
	return h.call("Move", func(ctx context.Context) error {
		return h.sw.MoveDevice(ctx, name, int(toIndex))
	})
}

// Serve exports the controller on conn and holds the bus name until ctx is
// cancelled.
func Serve(ctx context.Context, conn *dbus.Conn, sw Switcher, telemetry micboard.Telemetry, log *zap.SugaredLogger) error {
	h := &handler{ctx: ctx, sw: sw, telemetry: telemetry, log: log}

	if err := conn.Export(h, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export methods: %w", err)
	}
	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: introspect.Methods(h)},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", ServiceName)
	}

	log.Infof("Control service listening on %s", ServiceName)

	<-ctx.Done()

	_, _ = conn.ReleaseName(ServiceName)
	_ = conn.Export(nil, ObjectPath, Interface)

	return ctx.Err()
}
