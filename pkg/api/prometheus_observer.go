package api

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports saga lifecycle metrics through a prometheus
// registry. It implements Observer and is typically combined with
// LoggingObserver via NewCompositeObserver.
type PrometheusObserver struct {
	NoopObserver

	sagasStarted      *prometheus.CounterVec
	sagasCompleted    *prometheus.CounterVec
	messagesIgnored   *prometheus.CounterVec
	timeoutsScheduled *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
}

// NewPrometheusObserver registers the saga metrics with reg and returns the
// observer. If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		sagasStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_sagas_started_total",
			Help: "Number of saga instances created.",
		}, []string{"saga_type"}),
		sagasCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_sagas_completed_total",
			Help: "Number of saga instances completed and removed.",
		}, []string{"saga_type"}),
		messagesIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_saga_messages_ignored_total",
			Help: "Number of dispatched messages with no declared handler.",
		}, []string{"saga_type", "message_type"}),
		timeoutsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_saga_timeouts_scheduled_total",
			Help: "Number of timeout messages enqueued.",
		}, []string{"saga_type"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduit_saga_handler_duration_seconds",
			Help:    "Duration of saga message handlers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"saga_type", "message_type", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		o.sagasStarted, o.sagasCompleted, o.messagesIgnored,
		o.timeoutsScheduled, o.handlerDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnSagaStarted(ctx context.Context, sagaType string, rec *Record) {
	o.sagasStarted.WithLabelValues(sagaType).Inc()
}

func (o *PrometheusObserver) OnSagaCompleted(ctx context.Context, sagaType string, rec *Record) {
	o.sagasCompleted.WithLabelValues(sagaType).Inc()
}

func (o *PrometheusObserver) OnMessageHandled(ctx context.Context, sagaType string, rec *Record, msgType string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.handlerDuration.WithLabelValues(sagaType, msgType, outcome).Observe(d.Seconds())
}

func (o *PrometheusObserver) OnMessageIgnored(ctx context.Context, sagaType, correlationID, msgType string) {
	o.messagesIgnored.WithLabelValues(sagaType, msgType).Inc()
}

func (o *PrometheusObserver) OnTimeoutScheduled(ctx context.Context, sagaType, correlationID string, at time.Time) {
	o.timeoutsScheduled.WithLabelValues(sagaType).Inc()
}
