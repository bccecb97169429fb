package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

const namespace = "micboard"

type Kind int

const (
	Counter Kind = iota
	Gauge
)

func (k Kind) String() string {
	if k == Gauge {
		return "gauge"
	}
	return "counter"
}

type Metric struct {
	Name string
	Help string
	Kind Kind
}

func (m Metric) desc() *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", m.Name), m.Help, nil, nil)
}

func (m Metric) valueType() prometheus.ValueType {
	if m.Kind == Gauge {
		return prometheus.GaugeValue
	}
	return prometheus.CounterValue
}

// Catalog lists every metric the switcher reports.
var Catalog = []Metric{
	{micboard.MetricAppLaunches, "Times the switcher was started", Counter},
	{micboard.MetricAppTerminations, "Times the switcher was stopped", Counter},
	{micboard.MetricSwitches, "Default input device changes made by micboard", Counter},
	{micboard.MetricSwitchesAuto, "Automatic default input device changes", Counter},
	{micboard.MetricSwitchesManual, "Manual default input device changes", Counter},
	{micboard.MetricSettingsOpened, "Times the device list was requested", Counter},
	{micboard.MetricPriorityChanges, "Times the device priority was reordered", Counter},
	{micboard.MetricHistoryClears, "Times the device history was cleared", Counter},
	{micboard.MetricConnectedDevices, "Connected input devices", Gauge},
	{micboard.MetricHistoryDevices, "Devices in the priority history", Gauge},
}
