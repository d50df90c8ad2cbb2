package infra

import (
	"strconv"

	"request-guard/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector expõe store, monitor e log de eventos ao Prometheus.
// Os valores são lidos no momento do scrape.
type Collector struct {
	store   *WindowStore
	monitor *Monitor
	events  *EventLog
	slots   domain.SlotPool

	keys       *prometheus.Desc
	tracked    *prometheus.Desc
	requests   *prometheus.Desc
	violations *prometheus.Desc
	buffered   *prometheus.Desc
	eventCount *prometheus.Desc
	suspicious *prometheus.Desc
	inFlight   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector aceita componentes nil; o que faltar simplesmente não é exportado.
func NewCollector(store *WindowStore, monitor *Monitor, events *EventLog) *Collector {
	return &Collector{
		store:   store,
		monitor: monitor,
		events:  events,

		keys: prometheus.NewDesc("request_guard_store_keys",
			"Keys currently held by the sliding window store.", nil, nil),
		tracked: prometheus.NewDesc("request_guard_store_tracked_requests",
			"Request timestamps currently held by the sliding window store.", nil, nil),
		requests: prometheus.NewDesc("request_guard_monitor_requests",
			"Requests counted by the violation monitor.", nil, nil),
		violations: prometheus.NewDesc("request_guard_monitor_violations",
			"Rate limit violations counted by the violation monitor.", nil, nil),
		buffered: prometheus.NewDesc("request_guard_monitor_buffered_violations",
			"Violation records retained in the ring buffer.", nil, nil),
		eventCount: prometheus.NewDesc("request_guard_security_events",
			"Security events retained in the event log.", []string{"type", "severity"}, nil),
		suspicious: prometheus.NewDesc("request_guard_security_suspicious_ips",
			"Addresses with at least one high or critical event in the log.", nil, nil),
		inFlight: prometheus.NewDesc("request_guard_inflight_requests",
			"Concurrency slots currently held.", []string{"capacity"}, nil),
	}
}

// TrackSlots inclui o pool de concorrência no scrape.
func (c *Collector) TrackSlots(p domain.SlotPool) *Collector {
	c.slots = p
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.tracked
	ch <- c.requests
	ch <- c.violations
	ch <- c.buffered
	ch <- c.eventCount
	ch <- c.suspicious
	ch <- c.inFlight
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.store != nil {
		st := c.store.Stats()
		ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.KeyCount))
		ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.GaugeValue, float64(st.TotalTrackedRequests))
	}
	if c.monitor != nil {
		req, viol, buf := c.monitor.Totals()
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.GaugeValue, float64(req))
		ch <- prometheus.MustNewConstMetric(c.violations, prometheus.GaugeValue, float64(viol))
		ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(buf))
	}
	if c.events != nil {
		type pair struct{ typ, sev string }
		counts := make(map[pair]int)
		for _, ev := range c.events.Recent(0) {
			counts[pair{string(ev.Type), string(ev.Severity)}]++
		}
		for p, n := range counts {
			ch <- prometheus.MustNewConstMetric(c.eventCount, prometheus.GaugeValue, float64(n), p.typ, p.sev)
		}
		m := c.events.Metrics()
		ch <- prometheus.MustNewConstMetric(c.suspicious, prometheus.GaugeValue, float64(len(m.SuspiciousAddresses)))
	}
	if c.slots != nil {
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue,
			float64(c.slots.InFlight()), strconv.Itoa(c.slots.Capacity()))
	}
}
