// Package prom collects run stats as Prometheus metrics, which can be pushed
// to a Pushgateway once the run is over.
package prom

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sparkify/lake"
)

var _ lake.Statter = &Statter{}

var invalidName = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Statter is a lake.Statter backed by a Prometheus registry. Tags of the form
// "key:value" become labels. The label names of a metric are fixed by the
// first observation of it; later observations leave out labels it does not
// have, and get "" for labels they lack.
type Statter struct {
	namespace string
	reg       *prometheus.Registry
	log       lake.Logger

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	timings  map[string]*prometheus.HistogramVec
	labels   map[string][]string
}

// NewStatter gets a Statter registering metrics in its own registry, with
// names prefixed by namespace.
func NewStatter(namespace string, log lake.Logger) *Statter {
	if log == nil {
		log = lake.NopLogger{}
	}
	return &Statter{
		namespace: namespace,
		reg:       prometheus.NewRegistry(),
		log:       log,
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		timings:   make(map[string]*prometheus.HistogramVec),
		labels:    make(map[string][]string),
	}
}

// Registry returns the registry the Statter's metrics are in.
func (s *Statter) Registry() *prometheus.Registry { return s.reg }

func parseTags(tags []string) map[string]string {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		k, v, _ := strings.Cut(tag, ":")
		m[invalidName.ReplaceAllString(k, "_")] = v
	}
	return m
}

// labelsFor fixes the label names of name on first use and returns them with
// the label values for tags. s.mu must be held.
func (s *Statter) labelsFor(name string, tags []string) (names []string, values prometheus.Labels) {
	tm := parseTags(tags)
	names, ok := s.labels[name]
	if !ok {
		for k := range tm {
			names = append(names, k)
		}
		s.labels[name] = names
	}
	values = make(prometheus.Labels, len(names))
	for _, n := range names {
		values[n] = tm[n]
	}
	return names, values
}

func (s *Statter) register(c prometheus.Collector, name string) bool {
	if err := s.reg.Register(c); err != nil {
		s.log.Printf("registering metric %s: %v", name, err)
		return false
	}
	return true
}

func metricName(name string) string {
	return invalidName.ReplaceAllString(name, "_")
}

// Count implements lake.Statter.
func (s *Statter) Count(name string, value int64, rate float64, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels, values := s.labelsFor("c/"+name, tags)
	cv, ok := s.counters[name]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      metricName(name) + "_total",
			Help:      "Count of " + name + ".",
		}, labels)
		if !s.register(cv, name) {
			return
		}
		s.counters[name] = cv
	}
	cv.With(values).Add(float64(value))
}

// Gauge implements lake.Statter.
func (s *Statter) Gauge(name string, value float64, rate float64, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels, values := s.labelsFor("g/"+name, tags)
	gv, ok := s.gauges[name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      metricName(name),
			Help:      "Last value of " + name + ".",
		}, labels)
		if !s.register(gv, name) {
			return
		}
		s.gauges[name] = gv
	}
	gv.With(values).Set(value)
}

// Histogram implements lake.Statter. Histograms are not collected.
func (s *Statter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set implements lake.Statter. Sets are not collected.
func (s *Statter) Set(name string, value string, rate float64, tags ...string) {}

// Timing implements lake.Statter.
func (s *Statter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels, values := s.labelsFor("t/"+name, tags)
	hv, ok := s.timings[name]
	if !ok {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      metricName(name) + "_seconds",
			Help:      "Duration of " + name + ".",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, labels)
		if !s.register(hv, name) {
			return
		}
		s.timings[name] = hv
	}
	hv.With(values).Observe(value.Seconds())
}

// Push sends every metric to the Pushgateway at url under job, grouped by
// the given label pairs.
func (s *Statter) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("pushgateway url is required")
	}
	pusher := push.New(url, job).Gatherer(s.reg)
	for k, v := range grouping {
		if k == "" || v == "" {
			continue
		}
		pusher = pusher.Grouping(k, v)
	}
	return errors.Wrapf(pusher.PushContext(ctx), "pushing metrics to %s", url)
}
