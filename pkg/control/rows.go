package control

import (
	"codeberg.org/miketth/micboard/pkg/micboard"
)

// Row is one line of the device list as shown to the user. Remembered
// devices come first in priority order, then connected devices that are not
// remembered with a Priority of -1.
type Row struct {
	Handle    uint32
	Name      string
	Priority  int32
	Connected bool
	Default   bool
}

// Listing is the reply of the List method.
type Listing struct {
	Rows       []Row
	AutoSwitch bool
	Mode       string
}

func BuildRows(snap micboard.Snapshot) []Row {
	handles := make(map[string]micboard.Handle, len(snap.Devices))
	for _, d := range snap.Devices {
		if _, ok := handles[d.Name]; !ok || d.Handle == snap.Default {
			handles[d.Name] = d.Handle
		}
	}

	rows := make([]Row, 0, len(snap.History)+len(snap.Devices))
	listed := make(map[string]bool, len(snap.History))
	for i, e := range snap.History {
		h, connected := handles[e.Name]
		rows = append(rows, Row{
			Handle:    uint32(h),
			Name:      e.Name,
			Priority:  int32(i),
			Connected: connected,
			Default:   connected && h == snap.Default,
		})
		listed[e.Name] = true
	}

	for _, d := range snap.Devices {
		if listed[d.Name] {
			continue
		}
		rows = append(rows, Row{
			Handle:    uint32(d.Handle),
			Name:      d.Name,
			Priority:  -1,
			Connected: true,
			Default:   d.Handle == snap.Default,
		})
		listed[d.Name] = true
	}

	return rows
}
