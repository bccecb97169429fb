package pulse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Client streams the lines printed by `pactl subscribe`.
type Client struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
}

func (c *Client) Close() error {
	_ = c.stdout.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return c.cmd.Wait()
}

func (c *Client) ReadLine() (string, error) {
	str, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read from pactl subscribe: %w", err)
	}
	return strings.TrimSuffix(str, "\n"), nil
}

func Connect(ctx context.Context, path string) (*Client, error) {
	if path == "" {
		path = "pactl"
	}

	cmd := exec.CommandContext(ctx, path, "subscribe")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pactl subscribe: %w", err)
	}

	return &Client{cmd: cmd, stdout: stdout, reader: bufio.NewReader(stdout)}, nil
}
