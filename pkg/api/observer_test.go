package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

//
// Helpers
//

// countingObserver verifies fan-out behavior.
type countingObserver struct {
	mu sync.Mutex

	starts    int
	completes int
	handled   int
	ignored   int
	timeouts  int

	lastRecord  *Record
	lastErr     error
	lastMsgType string
}

func (o *countingObserver) OnSagaStarted(ctx context.Context, sagaType string, rec *Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	o.lastRecord = rec
}

func (o *countingObserver) OnSagaCompleted(ctx context.Context, sagaType string, rec *Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completes++
	o.lastRecord = rec
}

func (o *countingObserver) OnMessageHandled(ctx context.Context, sagaType string, rec *Record, msgType string, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handled++
	o.lastMsgType = msgType
	o.lastErr = err
}

func (o *countingObserver) OnMessageIgnored(ctx context.Context, sagaType, correlationID, msgType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ignored++
	o.lastMsgType = msgType
}

func (o *countingObserver) OnTimeoutScheduled(ctx context.Context, sagaType, correlationID string, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timeouts++
}

//
// CompositeObserver
//

func TestCompositeObserverFansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	obs := NewCompositeObserver(a, b)

	ctx := context.Background()
	rec := &Record{ID: "id-1", CorrelationID: "o-1"}

	obs.OnSagaStarted(ctx, "order", rec)
	obs.OnMessageHandled(ctx, "order", rec, "api.createOrder", nil, time.Millisecond)
	obs.OnMessageIgnored(ctx, "order", "o-1", "api.shipOrder")
	obs.OnTimeoutScheduled(ctx, "order", "o-1", time.Now())
	obs.OnSagaCompleted(ctx, "order", rec)

	for i, o := range []*countingObserver{a, b} {
		if o.starts != 1 || o.completes != 1 || o.handled != 1 || o.ignored != 1 || o.timeouts != 1 {
			t.Errorf("observer %d missed events: %+v", i, o)
		}
		if o.lastRecord != rec {
			t.Errorf("observer %d saw a different record", i)
		}
	}
}

func TestCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Error("no observers should collapse to NoopObserver")
	}

	single := &countingObserver{}
	if got := NewCompositeObserver(single); got != Observer(single) {
		t.Error("single observer should be returned as-is")
	}
}

//
// BasicMetrics
//

func TestBasicMetricsSnapshot(t *testing.T) {
	m := &BasicMetrics{}
	ctx := context.Background()
	rec := &Record{CorrelationID: "o-1"}

	m.OnSagaStarted(ctx, "order", rec)
	m.OnSagaStarted(ctx, "order", rec)
	m.OnMessageHandled(ctx, "order", rec, "api.createOrder", nil, time.Millisecond)
	m.OnMessageHandled(ctx, "order", rec, "api.paymentReceived", errors.New("boom"), time.Millisecond)
	m.OnMessageIgnored(ctx, "order", "o-1", "api.shipOrder")
	m.OnTimeoutScheduled(ctx, "order", "o-1", time.Now())
	m.OnSagaCompleted(ctx, "order", rec)

	snap := m.Snapshot()
	if snap.SagasStarted != 2 {
		t.Errorf("SagasStarted = %d, want 2", snap.SagasStarted)
	}
	if snap.SagasCompleted != 1 {
		t.Errorf("SagasCompleted = %d, want 1", snap.SagasCompleted)
	}
	if snap.ActiveSagas != 1 {
		t.Errorf("ActiveSagas = %d, want 1", snap.ActiveSagas)
	}
	if snap.MessagesHandled != 1 {
		t.Errorf("MessagesHandled = %d, want 1", snap.MessagesHandled)
	}
	if snap.MessagesFailed != 1 {
		t.Errorf("MessagesFailed = %d, want 1", snap.MessagesFailed)
	}
	if snap.MessagesIgnored != 1 {
		t.Errorf("MessagesIgnored = %d, want 1", snap.MessagesIgnored)
	}
	if snap.TimeoutsScheduled != 1 {
		t.Errorf("TimeoutsScheduled = %d, want 1", snap.TimeoutsScheduled)
	}
}

//
// LoggingObserver
//

func TestLoggingObserverIsSafeOnAllEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	obs := NewLoggingObserver(logger)

	ctx := context.Background()
	rec := &Record{ID: "id-1", CorrelationID: "o-1", State: StateStarted}

	obs.OnSagaStarted(ctx, "order", rec)
	obs.OnMessageHandled(ctx, "order", rec, "api.createOrder", nil, time.Millisecond)
	obs.OnMessageHandled(ctx, "order", rec, "api.createOrder", errors.New("boom"), time.Millisecond)
	obs.OnMessageIgnored(ctx, "order", "o-1", "api.shipOrder")
	obs.OnTimeoutScheduled(ctx, "order", "o-1", time.Now())
	obs.OnSagaCompleted(ctx, "order", rec)
}
