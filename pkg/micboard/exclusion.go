package micboard

import (
	"fmt"
	"regexp"
)

// DefaultExcludePattern matches phones used as microphones (Continuity
// Camera, tethered handsets), which come and go with the phone.
const DefaultExcludePattern = `(?i)iphone`

// Exclusion decides which devices may never be picked automatically or
// remembered in the history. A nil *Exclusion excludes nothing.
type Exclusion struct {
	re *regexp.Regexp
}

func NewExclusion(pattern string) (*Exclusion, error) {
	if pattern == "" {
		return nil, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile exclude pattern %q: %w", pattern, err)
	}

	return &Exclusion{re: re}, nil
}

func (e *Exclusion) Excluded(name string) bool {
	if e == nil || e.re == nil {
		return false
	}
	return e.re.MatchString(name)
}

// Eligible returns the devices that are not excluded, in their original order.
func (e *Exclusion) Eligible(devices []Device) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if !e.Excluded(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

func (e *Exclusion) String() string {
	if e == nil || e.re == nil {
		return ""
	}
	return e.re.String()
}
