package bufferpool

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the pool does. Pass nil to New's WithMetrics option
// (or skip the option) to run without instrumentation.
type Metrics struct {
	Hits       prometheus.Counter
	Misses     prometheus.Counter
	Evictions  prometheus.Counter
	WriteBacks prometheus.Counter
}

// NewMetrics builds the pool counters and registers them on reg when reg
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reldb",
			Subsystem: "bufferpool",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		Hits:       counter("hits_total", "Fetches served from a resident frame."),
		Misses:     counter("misses_total", "Fetches that had to read the page from disk."),
		Evictions:  counter("evictions_total", "Frames reclaimed through the replacer."),
		WriteBacks: counter("write_backs_total", "Dirty pages written back to disk."),
	}

	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.WriteBacks)
	}
	return m
}

func (m *Metrics) hit() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *Metrics) eviction() {
	if m != nil {
		m.Evictions.Inc()
	}
}

func (m *Metrics) writeBack() {
	if m != nil {
		m.WriteBacks.Inc()
	}
}
