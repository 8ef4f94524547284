package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

//
// Fixtures
//

type orderState struct {
	Record

	Total int
	Paid  bool
}

type createOrder struct {
	OrderID string
	Total   int
}

type paymentReceived struct {
	OrderID string
}

type shipOrder struct {
	OrderID string
}

// orderSaga is a small two-step workflow used across the tests in this
// package: created on createOrder, completed on paymentReceived.
type orderSaga struct {
	Base

	handled []string
}

func (s *orderSaga) Init(cfg *Config) {
	cfg.HandleFunc(createOrder{}, s.handleCreate)
	cfg.HandleFunc(paymentReceived{}, s.handlePayment)
	cfg.Correlation().
		CorrelateByCorrelationID(createOrder{}, func(m any) (string, error) {
			return m.(createOrder).OrderID, nil
		}).
		CorrelateByCorrelationID(paymentReceived{}, func(m any) (string, error) {
			return m.(paymentReceived).OrderID, nil
		})
}

func (s *orderSaga) handleCreate(ctx context.Context, mctx MessageContext, msg any) error {
	s.handled = append(s.handled, "create")
	s.Entity().(*orderState).Total = msg.(createOrder).Total
	return nil
}

func (s *orderSaga) handlePayment(ctx context.Context, mctx MessageContext, msg any) error {
	s.handled = append(s.handled, "payment")
	s.Entity().(*orderState).Paid = true
	s.MarkAsComplete()
	return nil
}

// recordingTransport captures everything a saga sends.
type recordingTransport struct {
	sends  []sentMessage
	events []any
}

type sentMessage struct {
	Destination string
	Message     any
}

func (t *recordingTransport) Send(ctx context.Context, destination string, msg any) error {
	t.sends = append(t.sends, sentMessage{Destination: destination, Message: msg})
	return nil
}

func (t *recordingTransport) Publish(ctx context.Context, event any) error {
	t.events = append(t.events, event)
	return nil
}

// recordingScheduler captures timeout requests instead of queueing them.
type recordingScheduler struct {
	requests []TimeoutRequest
	err      error
}

func (s *recordingScheduler) ScheduleTimeout(ctx context.Context, req TimeoutRequest) error {
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

func newTestContext(transport Transport) *DeliveryContext {
	return &DeliveryContext{
		Correlation: "o-1",
		Message:     "m-1",
		From:        "caller",
		Local:       "local",
		Transport:   transport,
	}
}

func mustBind(t *testing.T, s Saga, entity Entity, scheduler TimeoutScheduler) *Binding {
	t.Helper()
	b, err := Bind(s, entity, "order", scheduler)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	return b
}

//
// Dispatch
//

func TestHandleDispatchesByConcreteType(t *testing.T) {
	saga := &orderSaga{}
	state := &orderState{}
	b := mustBind(t, saga, state, nil)

	mctx := newTestContext(&recordingTransport{})
	if err := b.Handle(context.Background(), mctx, createOrder{OrderID: "o-1", Total: 42}); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if len(saga.handled) != 1 || saga.handled[0] != "create" {
		t.Fatalf("expected create handler to run once, got %v", saga.handled)
	}
	if state.Total != 42 {
		t.Fatalf("handler should mutate the bound record, Total = %d", state.Total)
	}
}

func TestHandleUnknownTypeIsNoOp(t *testing.T) {
	saga := &orderSaga{}
	b := mustBind(t, saga, &orderState{}, nil)

	mctx := newTestContext(&recordingTransport{})
	if err := b.Handle(context.Background(), mctx, shipOrder{OrderID: "o-1"}); err != nil {
		t.Fatalf("unhandled message type must be a no-op, got error: %v", err)
	}
	if len(saga.handled) != 0 {
		t.Fatalf("no handler should have run, got %v", saga.handled)
	}
	if b.CanHandle(shipOrder{}) {
		t.Fatal("CanHandle must agree with Handle: shipOrder has no handler")
	}
}

func TestCanHandleAgreesWithDeclaredHandlers(t *testing.T) {
	b := mustBind(t, &orderSaga{}, &orderState{}, nil)

	if !b.CanHandle(createOrder{}) {
		t.Error("CanHandle(createOrder) = false, want true")
	}
	if !b.CanHandle(paymentReceived{}) {
		t.Error("CanHandle(paymentReceived) = false, want true")
	}
	if b.CanHandle(shipOrder{}) {
		t.Error("CanHandle(shipOrder) = true, want false")
	}
	if b.CanHandle(nil) {
		t.Error("CanHandle(nil) = true, want false")
	}
}

func TestHandlerErrorPropagatesUnmodified(t *testing.T) {
	sentinel := errors.New("payment gateway down")

	saga := &failingSaga{err: sentinel}
	b := mustBind(t, saga, &orderState{}, nil)

	err := b.Handle(context.Background(), newTestContext(nil), createOrder{OrderID: "o-1"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("handler error must propagate unmodified, got %v", err)
	}
}

type failingSaga struct {
	Base
	err error
}

func (s *failingSaga) Init(cfg *Config) {
	cfg.HandleFunc(createOrder{}, func(ctx context.Context, mctx MessageContext, msg any) error {
		return s.err
	})
	cfg.Correlation().CorrelateByCorrelationID(createOrder{}, func(m any) (string, error) {
		return m.(createOrder).OrderID, nil
	})
}

//
// Interface fallback
//

type orderEvent interface {
	EventOrderID() string
}

type auditedOrderEvent interface {
	EventOrderID() string
	AuditTag() string
}

type orderShipped struct{ ID string }

func (e orderShipped) EventOrderID() string { return e.ID }

type orderRefunded struct{ ID string }

func (e orderRefunded) EventOrderID() string { return e.ID }
func (e orderRefunded) AuditTag() string     { return "refund" }

type eventSaga struct {
	Base
	calls []string
}

func (s *eventSaga) Init(cfg *Config) {
	cfg.HandleFunc(orderShipped{}, func(ctx context.Context, mctx MessageContext, msg any) error {
		s.calls = append(s.calls, "exact")
		return nil
	})
	cfg.HandleInterface((*orderEvent)(nil), func(ctx context.Context, mctx MessageContext, msg any) error {
		s.calls = append(s.calls, "orderEvent")
		return nil
	})
	cfg.HandleInterface((*auditedOrderEvent)(nil), func(ctx context.Context, mctx MessageContext, msg any) error {
		s.calls = append(s.calls, "auditedOrderEvent")
		return nil
	})
	cfg.Correlation().CorrelateByCorrelationID(orderShipped{}, func(m any) (string, error) {
		return m.(orderShipped).ID, nil
	})
}

func TestExactHandlerWinsOverInterfaceHandler(t *testing.T) {
	saga := &eventSaga{}
	b := mustBind(t, saga, &orderState{}, nil)

	if err := b.Handle(context.Background(), newTestContext(nil), orderShipped{ID: "o-1"}); err != nil {
		t.Fatal(err)
	}
	if len(saga.calls) != 1 || saga.calls[0] != "exact" {
		t.Fatalf("exact-type handler must win, got %v", saga.calls)
	}
}

func TestMostSpecificInterfaceWins(t *testing.T) {
	saga := &eventSaga{}
	b := mustBind(t, saga, &orderState{}, nil)

	// orderRefunded implements both interfaces; auditedOrderEvent has the
	// larger method set.
	if err := b.Handle(context.Background(), newTestContext(nil), orderRefunded{ID: "o-1"}); err != nil {
		t.Fatal(err)
	}
	if len(saga.calls) != 1 || saga.calls[0] != "auditedOrderEvent" {
		t.Fatalf("most specific interface must win, got %v", saga.calls)
	}
}

func TestInterfaceTieGoesToEarliestRegistration(t *testing.T) {
	saga := &tieSaga{}
	b := mustBind(t, saga, &orderState{}, nil)

	if err := b.Handle(context.Background(), newTestContext(nil), orderShipped{ID: "o-1"}); err != nil {
		t.Fatal(err)
	}
	if len(saga.calls) != 1 || saga.calls[0] != "first" {
		t.Fatalf("tie must go to the earliest registration, got %v", saga.calls)
	}
}

type namedOrderEvent interface {
	EventOrderID() string
}

type tieSaga struct {
	Base
	calls []string
}

func (s *tieSaga) Init(cfg *Config) {
	// Both interfaces have one method and both match orderShipped.
	cfg.HandleInterface((*orderEvent)(nil), func(ctx context.Context, mctx MessageContext, msg any) error {
		s.calls = append(s.calls, "first")
		return nil
	})
	cfg.HandleInterface((*namedOrderEvent)(nil), func(ctx context.Context, mctx MessageContext, msg any) error {
		s.calls = append(s.calls, "second")
		return nil
	})
	cfg.Correlation().CorrelateByCorrelationID(orderShipped{}, func(m any) (string, error) {
		return m.(orderShipped).ID, nil
	})
}

//
// Completion
//

func TestMarkAsCompleteIsIdempotent(t *testing.T) {
	state := &orderState{}
	saga := &orderSaga{}
	b := mustBind(t, saga, state, nil)

	ctx := context.Background()
	mctx := newTestContext(&recordingTransport{})

	if err := b.Handle(ctx, mctx, paymentReceived{OrderID: "o-1"}); err != nil {
		t.Fatal(err)
	}
	if !b.IsCompleted() {
		t.Fatal("saga should be completed after payment")
	}
	first := state.Meta().LastUpdated

	// Completing again must not fail or change the observable outcome.
	saga.MarkAsComplete()
	saga.MarkAsComplete()

	if state.Meta().State != StateCompleted {
		t.Fatalf("State = %q, want %q", state.Meta().State, StateCompleted)
	}
	if !b.IsCompleted() {
		t.Fatal("IsCompleted must remain true")
	}
	if first.IsZero() {
		t.Fatal("MarkAsComplete must stamp LastUpdated")
	}
}

//
// Timeouts
//

func TestRequestTimeoutRequiresDeclaredHandler(t *testing.T) {
	sched := &recordingScheduler{}
	saga := &orderSaga{}
	state := &orderState{Record: Record{CorrelationID: "o-1"}}
	mustBind(t, saga, state, sched)

	err := saga.RequestTimeout(context.Background(), time.Minute, shipOrder{OrderID: "o-1"})
	if !errors.Is(err, ErrNoTimeoutHandler) {
		t.Fatalf("want ErrNoTimeoutHandler, got %v", err)
	}
	if len(sched.requests) != 0 {
		t.Fatal("nothing must be scheduled when the handler check fails")
	}
}

func TestRequestTimeoutWithoutScheduler(t *testing.T) {
	saga := &orderSaga{}
	mustBind(t, saga, &orderState{Record: Record{CorrelationID: "o-1"}}, nil)

	err := saga.RequestTimeout(context.Background(), time.Minute, paymentReceived{OrderID: "o-1"})
	if !errors.Is(err, ErrNoTimeoutScheduler) {
		t.Fatalf("want ErrNoTimeoutScheduler, got %v", err)
	}
}

func TestRequestTimeoutSchedulesWithSagaIdentity(t *testing.T) {
	sched := &recordingScheduler{}
	saga := &orderSaga{}
	state := &orderState{Record: Record{CorrelationID: "o-1"}}
	mustBind(t, saga, state, sched)

	before := time.Now()
	if err := saga.RequestTimeout(context.Background(), time.Hour, paymentReceived{OrderID: "o-1"}); err != nil {
		t.Fatal(err)
	}

	if len(sched.requests) != 1 {
		t.Fatalf("expected one scheduled timeout, got %d", len(sched.requests))
	}
	req := sched.requests[0]
	if req.SagaType != "order" {
		t.Errorf("SagaType = %q, want %q", req.SagaType, "order")
	}
	if req.CorrelationID != "o-1" {
		t.Errorf("CorrelationID = %q, want %q", req.CorrelationID, "o-1")
	}
	if _, ok := req.Message.(paymentReceived); !ok {
		t.Errorf("Message = %T, want paymentReceived", req.Message)
	}
	if req.At.Before(before.Add(59 * time.Minute)) {
		t.Errorf("At = %v, want roughly an hour out", req.At)
	}
}

//
// Reply to originator
//

func TestReplyToOriginator(t *testing.T) {
	transport := &recordingTransport{}
	saga := &orderSaga{}
	state := &orderState{Record: Record{CorrelationID: "o-1", Originator: "web-frontend"}}
	mustBind(t, saga, state, nil)

	mctx := newTestContext(transport)
	if err := saga.ReplyToOriginator(context.Background(), mctx, "order accepted"); err != nil {
		t.Fatal(err)
	}

	if len(transport.sends) != 1 {
		t.Fatalf("expected one send, got %d", len(transport.sends))
	}
	if transport.sends[0].Destination != "web-frontend" {
		t.Errorf("reply went to %q, want the recorded originator", transport.sends[0].Destination)
	}
}

func TestReplyToOriginatorWithoutOriginator(t *testing.T) {
	saga := &orderSaga{}
	mustBind(t, saga, &orderState{Record: Record{CorrelationID: "o-1"}}, nil)

	err := saga.ReplyToOriginator(context.Background(), newTestContext(&recordingTransport{}), "hello")
	if !errors.Is(err, ErrNoOriginator) {
		t.Fatalf("want ErrNoOriginator, got %v", err)
	}
}

//
// Bind validation
//

func TestBindReportsInitErrors(t *testing.T) {
	_, err := Bind(&brokenSaga{}, &orderState{}, "broken", nil)
	if err == nil {
		t.Fatal("Bind must surface Config errors accumulated during Init")
	}
}

type brokenSaga struct {
	Base
}

func (s *brokenSaga) Init(cfg *Config) {
	cfg.HandleFunc(createOrder{}, nil)               // nil handler
	cfg.HandleInterface(orderShipped{}, func(ctx context.Context, mctx MessageContext, msg any) error { // not an interface pointer
		return nil
	})
}
