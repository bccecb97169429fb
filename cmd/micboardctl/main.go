package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/godbus/dbus/v5"

	"codeberg.org/miketth/micboard/pkg/control"
)

func main() {
	root := newRootCmd(func() (controller, func(), error) {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, nil, fmt.Errorf("connect to session bus: %w", err)
		}
		return control.NewClient(conn), func() { _ = conn.Close() }, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
