package pulse

import (
	"errors"
	"os/exec"
	"regexp"
)

var (
	ErrNotRunning   = errors.New("pulseaudio/pipewire-pulse might not be running")
	ErrNoSuchEntity = errors.New("no such entity")
)

var errorMapper = map[*regexp.Regexp]error{
	regexp.MustCompile(`No such entity`):               ErrNoSuchEntity,
	regexp.MustCompile(`Connection (failure|refused)`): ErrNotRunning,
}

func mapError(output string) error {
	for re, mappedErr := range errorMapper {
		if re.MatchString(output) {
			return mappedErr
		}
	}
	return nil
}

// LookPath resolves the pactl binary, honouring an explicit path.
func LookPath(path string) (string, error) {
	if path == "" {
		path = "pactl"
	}
	return exec.LookPath(path)
}
