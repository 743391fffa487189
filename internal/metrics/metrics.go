// Package metrics exposes bot activity as Prometheus metrics. Counters are
// fed from the event bus so components never import prometheus directly.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sellerbot/internal/eventbus"
	logx "sellerbot/pkg/logx"
)

const namespace = "sellerbot"

// kindLabel limits label values to the known event kinds so product names
// and plugin keys do not explode cardinality.
var kindLabel = map[string]bool{"message": true, "order": true, "review": true}

type Metrics struct {
	reg     *prometheus.Registry
	events  *prometheus.CounterVec
	plugins *prometheus.CounterVec
	stock   *prometheus.CounterVec
	started time.Time
}

func New() *Metrics {
	m := &Metrics{
		reg:     prometheus.NewRegistry(),
		started: time.Now(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Dispatcher and notifier outcomes by bus topic and event kind.",
		}, []string{"topic", "kind"}),
		plugins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_events_total",
			Help:      "Plugin activations and failures by plugin key.",
		}, []string{"topic", "plugin"}),
		stock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_pops_total",
			Help:      "Stock pop attempts by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.plugins,
		m.stock,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started.",
		}, func() float64 { return time.Since(m.started).Seconds() }),
	)
	return m
}

// Gauge registers a sampled value, e.g. the dedup window size.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe counts one bus event.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TopicPluginActivated, eventbus.TopicPluginFailed:
		m.plugins.WithLabelValues(e.Type, e.Kind).Inc()
	case eventbus.TopicStockPopped:
		m.stock.WithLabelValues("ok").Inc()
	case eventbus.TopicStockEmpty:
		m.stock.WithLabelValues("empty").Inc()
	default:
		kind := e.Kind
		if !kindLabel[kind] {
			kind = "other"
		}
		m.events.WithLabelValues(e.Type, kind).Inc()
	}
}

// Run feeds bus events into the counters until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus, log logx.Logger) error {
	events, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	log.Debug("metrics collector started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
