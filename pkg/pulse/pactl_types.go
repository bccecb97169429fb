package pulse

import (
	"codeberg.org/miketth/micboard/pkg/micboard"
)

type source struct {
	Index         uint32            `json:"index"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	MonitorOfSink string            `json:"monitor_of_sink"`
	Properties    map[string]string `json:"properties"`
}

type serverInfo struct {
	DefaultSourceName string `json:"default_source_name"`
}

// isMonitor reports whether the source records what a sink plays rather
// than a microphone.
func (s source) isMonitor() bool {
	if s.MonitorOfSink != "" && s.MonitorOfSink != "n/a" {
		return true
	}
	return s.Properties["device.class"] == "monitor"
}

func (s source) ToDevice() micboard.Device {
	name := s.Description
	if name == "" {
		name = s.Name
	}
	return micboard.Device{
		Handle: micboard.Handle(s.Index),
		Name:   name,
	}
}
