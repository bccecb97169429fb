package micboard

import "fmt"

type EventKind int

const (
	DefaultChanged EventKind = iota
	DeviceSetChanged
)

func (k EventKind) String() string {
	switch k {
	case DefaultChanged:
		return "default-changed"
	case DeviceSetChanged:
		return "device-set-changed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a hardware notification together with the platform state it was
// resolved against.
type Event struct {
	Kind EventKind

	// Default is set for DefaultChanged.
	Default Handle
	// Devices is set for DeviceSetChanged.
	Devices []Device
}

// Mode describes how the switcher relates to the platform default.
type Mode int

const (
	// Synced means the belief matches the platform.
	Synced Mode = iota
	// Correcting means a corrective switch is scheduled or in flight.
	Correcting
	// IdleDisabled means auto-switching is off, changes are only tracked.
	IdleDisabled
)

func (m Mode) String() string {
	switch m {
	case Synced:
		return "synced"
	case Correcting:
		return "correcting"
	case IdleDisabled:
		return "idle-disabled"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Snapshot is a copy of the switcher state for presentation.
type Snapshot struct {
	Default    Handle
	Devices    []Device
	History    []HistoryEntry
	AutoSwitch bool
	Mode       Mode
}

// DefaultName returns the name of the default device, or "" when it is not
// among the connected devices.
func (s Snapshot) DefaultName() string {
	return nameOf(s.Devices, s.Default)
}

const (
	MetricAppLaunches      = "app_launches_total"
	MetricAppTerminations  = "app_terminations_total"
	MetricSwitches         = "microphone_switches_total"
	MetricSwitchesAuto     = "microphone_switches_auto_total"
	MetricSwitchesManual   = "microphone_switches_manual_total"
	MetricSettingsOpened   = "settings_opened_total"
	MetricPriorityChanges  = "priority_changes_total"
	MetricHistoryClears    = "device_history_clears_total"
	MetricConnectedDevices = "connected_devices"
	MetricHistoryDevices   = "history_devices"
)

func nameOf(devices []Device, h Handle) string {
	for _, d := range devices {
		if d.Handle == h {
			return d.Name
		}
	}
	return ""
}

func handleSet(devices []Device) map[Handle]struct{} {
	set := make(map[Handle]struct{}, len(devices))
	for _, d := range devices {
		set[d.Handle] = struct{}{}
	}
	return set
}
