package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the orchestrator for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay dispatch.
type Observer interface {
	// OnSagaStarted is called once when a new record is created for a
	// correlation id, before the first handler runs.
	OnSagaStarted(ctx context.Context, sagaType string, rec *Record)

	// OnSagaCompleted is called after a completed record has been removed
	// from the persister.
	OnSagaCompleted(ctx context.Context, sagaType string, rec *Record)

	// OnMessageHandled is called after a handler returns, for both
	// successes and failures (err != nil).
	OnMessageHandled(ctx context.Context, sagaType string, rec *Record, msgType string, err error, duration time.Duration)

	// OnMessageIgnored is called when a dispatched message has no declared
	// handler and the dispatch is a no-op.
	OnMessageIgnored(ctx context.Context, sagaType, correlationID, msgType string)

	// OnTimeoutScheduled is called after a timeout message has been durably
	// enqueued.
	OnTimeoutScheduled(ctx context.Context, sagaType, correlationID string, at time.Time)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnSagaStarted(ctx context.Context, sagaType string, rec *Record)   {}
func (NoopObserver) OnSagaCompleted(ctx context.Context, sagaType string, rec *Record) {}
func (NoopObserver) OnMessageHandled(ctx context.Context, sagaType string, rec *Record, msgType string, err error, d time.Duration) {
}
func (NoopObserver) OnMessageIgnored(ctx context.Context, sagaType, correlationID, msgType string) {}
func (NoopObserver) OnTimeoutScheduled(ctx context.Context, sagaType, correlationID string, at time.Time) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnSagaStarted(ctx context.Context, sagaType string, rec *Record) {
	for _, o := range c.observers {
		o.OnSagaStarted(ctx, sagaType, rec)
	}
}

func (c *CompositeObserver) OnSagaCompleted(ctx context.Context, sagaType string, rec *Record) {
	for _, o := range c.observers {
		o.OnSagaCompleted(ctx, sagaType, rec)
	}
}

func (c *CompositeObserver) OnMessageHandled(ctx context.Context, sagaType string, rec *Record, msgType string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnMessageHandled(ctx, sagaType, rec, msgType, err, d)
	}
}

func (c *CompositeObserver) OnMessageIgnored(ctx context.Context, sagaType, correlationID, msgType string) {
	for _, o := range c.observers {
		o.OnMessageIgnored(ctx, sagaType, correlationID, msgType)
	}
}

func (c *CompositeObserver) OnTimeoutScheduled(ctx context.Context, sagaType, correlationID string, at time.Time) {
	for _, o := range c.observers {
		o.OnTimeoutScheduled(ctx, sagaType, correlationID, at)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs saga lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnSagaStarted(ctx context.Context, sagaType string, rec *Record) {
	o.Logger.InfoContext(ctx, "saga_started",
		slog.String("saga_type", sagaType),
		slog.String("correlation_id", rec.CorrelationID),
		slog.String("saga_id", rec.ID),
	)
}

func (o *LoggingObserver) OnSagaCompleted(ctx context.Context, sagaType string, rec *Record) {
	o.Logger.InfoContext(ctx, "saga_completed",
		slog.String("saga_type", sagaType),
		slog.String("correlation_id", rec.CorrelationID),
		slog.String("saga_id", rec.ID),
	)
}

func (o *LoggingObserver) OnMessageHandled(ctx context.Context, sagaType string, rec *Record, msgType string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "saga_message_handled",
		slog.String("saga_type", sagaType),
		slog.String("correlation_id", rec.CorrelationID),
		slog.String("message_type", msgType),
		slog.String("state", rec.State),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnMessageIgnored(ctx context.Context, sagaType, correlationID, msgType string) {
	o.Logger.DebugContext(ctx, "saga_message_ignored",
		slog.String("saga_type", sagaType),
		slog.String("correlation_id", correlationID),
		slog.String("message_type", msgType),
	)
}

func (o *LoggingObserver) OnTimeoutScheduled(ctx context.Context, sagaType, correlationID string, at time.Time) {
	o.Logger.DebugContext(ctx, "saga_timeout_scheduled",
		slog.String("saga_type", sagaType),
		slog.String("correlation_id", correlationID),
		slog.Time("due_at", at),
	)
}

// BasicMetrics collects simple counters and aggregate handler durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	sagasStarted         atomic.Int64
	sagasCompleted       atomic.Int64
	messagesHandled      atomic.Int64
	messagesFailed       atomic.Int64
	messagesIgnored      atomic.Int64
	timeoutsScheduled    atomic.Int64
	totalHandlerDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	SagasStarted   int64
	SagasCompleted int64
	ActiveSagas    int64

	MessagesHandled    int64
	MessagesFailed     int64
	MessagesIgnored    int64
	TimeoutsScheduled  int64
	AvgHandlerDuration time.Duration
}

func (m *BasicMetrics) OnSagaStarted(ctx context.Context, sagaType string, rec *Record) {
	m.sagasStarted.Add(1)
}

func (m *BasicMetrics) OnSagaCompleted(ctx context.Context, sagaType string, rec *Record) {
	m.sagasCompleted.Add(1)
}

func (m *BasicMetrics) OnMessageHandled(ctx context.Context, sagaType string, rec *Record, msgType string, err error, d time.Duration) {
	if err != nil {
		m.messagesFailed.Add(1)
		return
	}
	m.messagesHandled.Add(1)
	m.totalHandlerDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnMessageIgnored(ctx context.Context, sagaType, correlationID, msgType string) {
	m.messagesIgnored.Add(1)
}

func (m *BasicMetrics) OnTimeoutScheduled(ctx context.Context, sagaType, correlationID string, at time.Time) {
	m.timeoutsScheduled.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.sagasStarted.Load()
	completed := m.sagasCompleted.Load()
	handled := m.messagesHandled.Load()
	totalNs := m.totalHandlerDuration.Load()

	var avg time.Duration
	if handled > 0 {
		avg = time.Duration(totalNs / handled)
	}

	return BasicMetricsSnapshot{
		SagasStarted:       started,
		SagasCompleted:     completed,
		ActiveSagas:        started - completed,
		MessagesHandled:    handled,
		MessagesFailed:     m.messagesFailed.Load(),
		MessagesIgnored:    m.messagesIgnored.Load(),
		TimeoutsScheduled:  m.timeoutsScheduled.Load(),
		AvgHandlerDuration: avg,
	}
}
