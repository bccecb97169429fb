package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codeberg.org/miketth/micboard/pkg/control"
	"codeberg.org/miketth/micboard/pkg/micboard"
)

type controller interface {
	List(ctx context.Context) (control.Listing, error)
	Select(ctx context.Context, h micboard.Handle) error
	SetAutoSwitch(ctx context.Context, enabled bool) error
	ClearHistory(ctx context.Context) error
	Move(ctx context.Context, name string, toIndex int) error
}

type dialer func() (controller, func(), error)

func newRootCmd(dial dialer) *cobra.Command {
	root := &cobra.Command{
		Use:          "micboardctl",
		Short:        "Control a running micboard",
		Long:         `Inspect and change how micboard picks the default microphone.`,
		SilenceUsage: true,
	}

	withClient := func(fn func(cmd *cobra.Command, c controller, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, closeFn, err := dial()
			if err != nil {
				return err
			}
			defer closeFn()
			return fn(cmd, c, args)
		}
	}

	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show devices in priority order",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c controller, _ []string) error {
			l, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			if listJSON {
				return printJSON(cmd.OutOrStdout(), l)
			}
			return printListing(cmd.OutOrStdout(), l)
		}),
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")

	selectCmd := &cobra.Command{
		Use:   "select <handle|name>",
		Short: "Make a device the default, turning auto-switching off",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, c controller, args []string) error {
			h, err := resolveDevice(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			return c.Select(cmd.Context(), h)
		}),
	}

	autoCmd := &cobra.Command{
		Use:       "auto <on|off>",
		Short:     "Turn automatic switching on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: withClient(func(cmd *cobra.Command, c controller, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			return c.SetAutoSwitch(cmd.Context(), enabled)
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget all devices except the connected ones",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, c controller, _ []string) error {
			return c.ClearHistory(cmd.Context())
		}),
	}

	moveCmd := &cobra.Command{
		Use:   "move <name> <position>",
		Short: "Change the priority of a remembered device",
		Long: `Move a remembered device to a new position in the priority list.
Position 0 is the most preferred device.

Examples:
  micboardctl move "Blue Yeti" 0`,
		Args: cobra.ExactArgs(2),
		RunE: withClient(func(cmd *cobra.Command, c controller, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil || pos < 0 {
				return fmt.Errorf("position must be a non-negative number, got %q", args[1])
			}
			return c.Move(cmd.Context(), args[0], pos)
		}),
	}

	root.AddCommand(listCmd, selectCmd, autoCmd, clearCmd, moveCmd)
	return root
}

// resolveDevice accepts a handle or the name of a connected device.
func resolveDevice(ctx context.Context, c controller, arg string) (micboard.Handle, error) {
	if n, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return micboard.Handle(n), nil
	}

	l, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range l.Rows {
		if r.Connected && r.Name == arg {
			return micboard.Handle(r.Handle), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", arg, micboard.ErrUnknownDevice)
}

func printListing(w io.Writer, l control.Listing) error {
	auto := "off"
	if l.AutoSwitch {
		auto = "on"
	}
	if _, err := fmt.Fprintf(w, "auto-switch: %s (%s)\n\n", auto, l.Mode); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tHANDLE\tNAME\tSTATE")
	for _, r := range l.Rows {
		prio := "-"
		if r.Priority >= 0 {
			prio = strconv.Itoa(int(r.Priority))
		}
		handle := "-"
		state := "disconnected"
		if r.Connected {
			handle = strconv.FormatUint(uint64(r.Handle), 10)
			state = "connected"
		}
		if r.Default {
			state = "default"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", prio, handle, r.Name, state)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
