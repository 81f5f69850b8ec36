// Package metrics exposes counters and gauges in Prometheus text exposition
// format without pulling in the client_golang dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Registry aggregates the service's counters and gauges. Constructed once in
// the entry point and injected where needed.
type Registry struct {
	mu        sync.Mutex
	counters  map[string]*Counter
	gauges    map[string]*Gauge
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Counter),
		gauges:    make(map[string]*Gauge),
		startTime: time.Now(),
	}
}

// Counter is a monotonically increasing value.
type Counter struct {
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge can go up and down.
type Gauge struct {
	help  string
	value atomic.Int64
}

func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns (creating if needed) the counter with the given name and
// label string, e.g. Counter("tasks_total", `type="CREATE",outcome="ok"`, help).
func (r *Registry) Counter(name, labels, help string) *Counter {
	key := name + "{" + labels + "}"
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{help: help}
	r.counters[key] = c
	return c
}

func (r *Registry) Gauge(name, labels, help string) *Gauge {
	key := name + "{" + labels + "}"
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := &Gauge{help: help}
	r.gauges[key] = g
	return g
}

// Handler serves the exposition endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		r.mu.Lock()
		lines := make([]string, 0, len(r.counters)+len(r.gauges)+1)
		for key, c := range r.counters {
			lines = append(lines, fmt.Sprintf("%s %d", expand(key), c.Value()))
		}
		for key, g := range r.gauges {
			lines = append(lines, fmt.Sprintf("%s %d", expand(key), g.Value()))
		}
		r.mu.Unlock()

		sort.Strings(lines)
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintf(w, "process_uptime_seconds %d\n", int64(time.Since(r.startTime).Seconds()))
	})
}

// expand strips the empty-label braces produced for unlabeled metrics.
func expand(key string) string {
	if len(key) >= 2 && key[len(key)-2:] == "{}" {
		return key[:len(key)-2]
	}
	return key
}
