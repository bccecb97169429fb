package micboard

// FindBestDevice returns the connected, non-excluded device that comes first
// in the history. Devices the history has never seen only win when no
// remembered device is connected; then the first one in enumeration order is
// used.
func FindBestDevice(history []HistoryEntry, devices []Device, exclude *Exclusion) (Device, bool) {
	eligible := exclude.Eligible(devices)
	if len(eligible) == 0 {
		return Device{}, false
	}

	for _, entry := range history {
		for _, d := range eligible {
			if d.Name == entry.Name {
				return d, true
			}
		}
	}

	return eligible[0], true
}

// ShouldAutoSwitch reports whether a newly seen candidate is worth switching
// away from current for. Unknown candidates always are; known ones only when
// current is remembered too and ranks strictly lower.
func ShouldAutoSwitch(history []HistoryEntry, candidate, current string) bool {
	if candidate == current {
		return false
	}

	candidateIdx := indexOf(history, candidate)
	if candidateIdx < 0 {
		return true
	}

	currentIdx := indexOf(history, current)
	return currentIdx >= 0 && candidateIdx < currentIdx
}
