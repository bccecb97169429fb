package pulse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

// Pactl reads and changes the default source through the pactl command line
// client, which talks to both PulseAudio and pipewire-pulse.
type Pactl struct {
	Path string
}

func NewPactl(path string) *Pactl {
	return &Pactl{Path: path}
}

func (p *Pactl) runCommand(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	path := p.Path
	if path == "" {
		path = "pactl"
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		errStr := strings.TrimSpace(stderr.String())
		if mapped := mapError(errStr); mapped != nil {
			return nil, fmt.Errorf("pactl %s: %w", args[len(args)-1], mapped)
		}
		return nil, fmt.Errorf("pactl: %w, stderr: %s", err, errStr)
	}

	return stdout.Bytes(), nil
}

func (p *Pactl) sources(ctx context.Context) ([]source, error) {
	out, err := p.runCommand(ctx, "-f", "json", "list", "sources")
	if err != nil {
		return nil, err
	}

	var sources []source
	if err := json.Unmarshal(out, &sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w, (pactl: %s)", err, out)
	}

	return sources, nil
}

func (p *Pactl) InputDevices(ctx context.Context) ([]micboard.Device, error) {
	sources, err := p.sources(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]micboard.Device, 0, len(sources))
	for _, s := range sources {
		if s.isMonitor() {
			continue
		}
		out = append(out, s.ToDevice())
	}

	return out, nil
}

func (p *Pactl) Default(ctx context.Context) (micboard.Handle, error) {
	out, err := p.runCommand(ctx, "-f", "json", "info")
	if err != nil {
		return 0, err
	}

	var info serverInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return 0, fmt.Errorf("unmarshal server info: %w, (pactl: %s)", err, out)
	}

	sources, err := p.sources(ctx)
	if err != nil {
		return 0, err
	}

	for _, s := range sources {
		if s.Name == info.DefaultSourceName {
			return micboard.Handle(s.Index), nil
		}
	}

	return 0, fmt.Errorf("default source %q: %w", info.DefaultSourceName, ErrNoSuchEntity)
}

// SetDefault selects the source by its internal name; the index is resolved
// first so a device that vanished in between yields ErrNoSuchEntity.
func (p *Pactl) SetDefault(ctx context.Context, h micboard.Handle) error {
	sources, err := p.sources(ctx)
	if err != nil {
		return err
	}

	for _, s := range sources {
		if micboard.Handle(s.Index) != h {
			continue
		}

		if _, err := p.runCommand(ctx, "set-default-source", s.Name); err != nil {
			return err
		}
		return nil
	}

	return fmt.Errorf("source #%d: %w", h, ErrNoSuchEntity)
}
