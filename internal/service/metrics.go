package service

import (
	"errors"
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "onyx_sync"

// SyncMetrics prometheus collectors of the sync engine, a nil *SyncMetrics records nothing
// SyncMetrics 同步引擎指标，nil 值不记录任何数据
type SyncMetrics struct {
	passes          *prometheus.CounterVec
	notes           *prometheus.CounterVec
	passDuration    prometheus.Histogram
	droppedTriggers prometheus.Counter
	connected       prometheus.Gauge
	orphaned        prometheus.Counter
}

// NewSyncMetrics registers the collectors, already registered collectors are reused
// NewSyncMetrics 注册指标，已注册的指标直接复用
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &SyncMetrics{
		passes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "passes_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"})),
		notes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notes_total",
			Help:      "Notes handled by reconciliation, by outcome.",
		}, []string{"outcome"})),
		passDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of completed reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		})),
		droppedTriggers: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_triggers_total",
			Help:      "Triggers dropped because a pass was already running.",
		})),
		connected: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected",
			Help:      "1 when the remote store answered the last health probe.",
		})),
		orphaned: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orphaned_remote_documents_total",
			Help:      "Remote deletes that failed after a local delete.",
		})),
	}
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// ObservePass 记录一次对账结果
func (m *SyncMetrics) ObservePass(r domain.SyncReport) {
	if m == nil {
		return
	}
	switch {
	case r.Skipped:
		m.passes.WithLabelValues("skipped").Inc()
		return
	case r.HasFailures():
		m.passes.WithLabelValues("partial").Inc()
	default:
		m.passes.WithLabelValues("ok").Inc()
	}
	m.notes.WithLabelValues("pushed").Add(float64(r.Pushed))
	m.notes.WithLabelValues("pulled").Add(float64(r.Pulled))
	m.notes.WithLabelValues("overwritten").Add(float64(r.Overwritten))
	m.notes.WithLabelValues("failed").Add(float64(r.Failed))
	m.notes.WithLabelValues("swept").Add(float64(r.Swept))
	m.passDuration.Observe(r.Duration.Seconds())
}

// ObserveFetchFailure 记录拉取列表失败的对账
func (m *SyncMetrics) ObserveFetchFailure(d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues("failed").Inc()
	m.passDuration.Observe(d.Seconds())
}

func (m *SyncMetrics) TriggerDropped() {
	if m == nil {
		return
	}
	m.droppedTriggers.Inc()
}

func (m *SyncMetrics) SetConnected(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *SyncMetrics) OrphanedDocument() {
	if m == nil {
		return
	}
	m.orphaned.Inc()
}
