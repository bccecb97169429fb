package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

// Client calls a running controller over the session bus.
type Client struct {
	obj dbus.BusObject
}

func NewClient(conn *dbus.Conn) *Client {
	return &Client{obj: conn.Object(ServiceName, ObjectPath)}
}

// fromDBus turns the named errors of the service back into micboard errors.
func fromDBus(err error) error {
	var dErr dbus.Error
	if errors.As(err, &dErr) {
		switch dErr.Name {
		case ErrUnknownDeviceName:
			return fmt.Errorf("%s: %w", dErr.Error(), micboard.ErrUnknownDevice)
		case ErrStoppedName:
			return fmt.Errorf("%s: %w", dErr.Error(), micboard.ErrStopped)
		}
	}
	var dErrPtr *dbus.Error
	if errors.As(err, &dErrPtr) {
		return fromDBus(*dErrPtr)
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	return c.obj.CallWithContext(ctx, Interface+"."+method, 0, args...)
}

func (c *Client) List(ctx context.Context) (Listing, error) {
	var l Listing
	err := c.call(ctx, "List").Store(&l.Rows, &l.AutoSwitch, &l.Mode)
	if err != nil {
		return Listing{}, fromDBus(err)
	}
	return l, nil
}

func (c *Client) Select(ctx context.Context, h micboard.Handle) error {
	return fromDBus(c.call(ctx, "Select", uint32(h)).Err)
}

func (c *Client) SetAutoSwitch(ctx context.Context, enabled bool) error {
	return fromDBus(c.call(ctx, "SetAutoSwitch", enabled).Err)
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return fromDBus(c.call(ctx, "ClearHistory").Err)
}

func (c *Client) Move(ctx context.Context, name string, toIndex int) error {
	return fromDBus(c.call(ctx, "Move", name, int32(toIndex)).Err)
}
