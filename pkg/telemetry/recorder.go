package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"codeberg.org/miketth/micboard/pkg/micboard"
)

// Recorder implements micboard.Telemetry. Counters survive restarts through
// the CounterStore, gauges only live in memory. It is also a
// prometheus.Collector exposing both.
type Recorder struct {
	store micboard.CounterStore
	log   *zap.SugaredLogger

	metrics map[string]Metric

	lock     sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
}

// NewRecorder loads persisted counters from store. enabled restricts
// recording to the named metrics; an empty list enables all of them.
func NewRecorder(store micboard.CounterStore, enabled []string, log *zap.SugaredLogger) *Recorder {
	r := &Recorder{
		store:    store,
		log:      log,
		metrics:  make(map[string]Metric),
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
	}

	allowed := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allowed[name] = true
	}
	for _, m := range Catalog {
		if len(allowed) == 0 || allowed[m.Name] {
			r.metrics[m.Name] = m
		}
	}

	counters, err := store.LoadCounters()
	if err != nil {
		log.Warnw("load counters, starting from zero", "error", err)
		return r
	}
	for name, value := range counters {
		if m, ok := r.metrics[name]; ok && m.Kind == Counter {
			r.counters[name] = value
		}
	}

	return r
}

func (r *Recorder) lookup(name string, kind Kind) bool {
	m, ok := r.metrics[name]
	if !ok {
		r.log.Debugw("metric not recorded", "metric", name)
		return false
	}
	if m.Kind != kind {
		r.log.Warnw("metric used as wrong kind", "metric", name, "kind", m.Kind, "used_as", kind)
		return false
	}
	return true
}

func (r *Recorder) IncrementCounter(name string) {
	if !r.lookup(name, Counter) {
		return
	}

	r.lock.Lock()
	r.counters[name]++
	value := r.counters[name]
	r.lock.Unlock()

	if err := r.store.SaveCounter(name, value); err != nil {
		r.log.Warnw("save counter", "metric", name, "error", err)
	}
}

func (r *Recorder) SetGauge(name string, value float64) {
	if !r.lookup(name, Gauge) {
		return
	}

	r.lock.Lock()
	r.gauges[name] = value
	r.lock.Unlock()
}

func (r *Recorder) Counter(name string) int64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counters[name]
}

func (r *Recorder) Gauge(name string) float64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.gauges[name]
}

func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range r.metrics {
		ch <- m.desc()
	}
}

func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.lock.Lock()
	defer r.lock.Unlock()

	for name, m := range r.metrics {
		var value float64
		if m.Kind == Counter {
			value = float64(r.counters[name])
		} else {
			value = r.gauges[name]
		}
		ch <- prometheus.MustNewConstMetric(m.desc(), m.valueType(), value)
	}
}
