package api

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// HandlerFunc handles one message dispatched into a saga. Handlers are
// declared in Saga.Init as closures over the saga instance and mutate the
// bound record through Base.Entity.
type HandlerFunc func(ctx context.Context, mctx MessageContext, msg any) error

// Saga is one workflow's behavior. Implementations embed Base and declare
// their handlers and correlation rules in Init:
//
//	type OrderSaga struct {
//	    api.Base
//	}
//
//	func (s *OrderSaga) Init(cfg *api.Config) {
//	    cfg.HandleFunc(CreateOrder{}, s.handleCreate)
//	    cfg.HandleFunc(OrderTimedOut{}, s.handleTimeout)
//	    cfg.Correlation().CorrelateByCorrelationID(CreateOrder{}, func(m any) (string, error) {
//	        return m.(CreateOrder).OrderID, nil
//	    })
//	}
//
// Init runs once at registration (to capture the type-level handled set and
// correlation rules) and once per dispatch on a fresh instance, so handler
// closures always bind to the instance handling the message. Saga instances
// are never shared between dispatches.
type Saga interface {
	Init(cfg *Config)

	// sagaBase is provided by embedding Base; it seals the interface.
	sagaBase() *Base
}

// Config collects a saga's dispatch table and correlation rules during Init.
// Dispatch is a map lookup keyed by the message's concrete type; there is no
// runtime method discovery.
type Config struct {
	handlers    map[reflect.Type]HandlerFunc
	ifaces      []ifaceHandler
	correlation *CorrelationConfig
	err         error
}

type ifaceHandler struct {
	typ reflect.Type
	fn  HandlerFunc
}

// NewConfig returns an empty Config. Application code rarely calls this; the
// orchestrator does when it runs Init.
func NewConfig() *Config {
	return &Config{
		handlers:    make(map[reflect.Type]HandlerFunc),
		correlation: NewCorrelationConfig(),
	}
}

// HandleFunc registers fn for messages of prototype's concrete type.
// Registering the same type twice replaces the earlier handler.
func (c *Config) HandleFunc(prototype any, fn HandlerFunc) *Config {
	t := reflect.TypeOf(prototype)
	if t == nil || fn == nil {
		c.err = errors.Join(c.err, fmt.Errorf("HandleFunc: nil prototype or handler"))
		return c
	}
	c.handlers[t] = fn
	return c
}

// HandleInterface registers fn as a fallback for any message whose type
// implements the interface named by prototype, which must be a nil pointer
// to the interface type:
//
//	cfg.HandleInterface((*PaymentEvent)(nil), s.handlePayment)
//
// Exact-type handlers always win over interface handlers. When several
// registered interfaces match a message, the one with the largest method set
// is chosen; ties go to the earliest registration.
func (c *Config) HandleInterface(prototype any, fn HandlerFunc) *Config {
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Interface {
		c.err = errors.Join(c.err, fmt.Errorf("HandleInterface: prototype must be a nil interface pointer, got %T", prototype))
		return c
	}
	if fn == nil {
		c.err = errors.Join(c.err, fmt.Errorf("HandleInterface: nil handler for %v", t.Elem()))
		return c
	}
	c.ifaces = append(c.ifaces, ifaceHandler{typ: t.Elem(), fn: fn})
	return c
}

// Correlation returns the saga's correlation configuration for fluent rule
// declaration inside Init.
func (c *Config) Correlation() *CorrelationConfig {
	return c.correlation
}

// Err reports configuration mistakes accumulated during Init.
func (c *Config) Err() error { return c.err }

// resolve finds the handler Handle would invoke for a message of type t.
func (c *Config) resolve(t reflect.Type) (HandlerFunc, bool) {
	if fn, ok := c.handlers[t]; ok {
		return fn, true
	}
	var (
		best     HandlerFunc
		bestSize = -1
	)
	for _, ih := range c.ifaces {
		if t.Implements(ih.typ) && ih.typ.NumMethod() > bestSize {
			best = ih.fn
			bestSize = ih.typ.NumMethod()
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// HandledTypes reports the exact message types with declared handlers.
func (c *Config) HandledTypes() []reflect.Type {
	out := make([]reflect.Type, 0, len(c.handlers))
	for t := range c.handlers {
		out = append(out, t)
	}
	return out
}

// HasHandlers reports whether Init declared any handler at all.
func (c *Config) HasHandlers() bool {
	return len(c.handlers) > 0 || len(c.ifaces) > 0
}

// CanHandle reports whether a handler is declared for msg's type. It agrees
// exactly with what Handle would do.
func (c *Config) CanHandle(msg any) bool {
	t := reflect.TypeOf(msg)
	if t == nil {
		return false
	}
	_, ok := c.resolve(t)
	return ok
}

// TimeoutRequest asks the scheduler to deliver Message back into the saga
// identified by (SagaType, CorrelationID) no earlier than At.
type TimeoutRequest struct {
	SagaType      string
	CorrelationID string
	Message       any
	At            time.Time
}

// TimeoutScheduler durably schedules timeout messages. The orchestrator
// implements it on top of a delay queue; delivering the message synchronously
// does not satisfy the contract.
type TimeoutScheduler interface {
	ScheduleTimeout(ctx context.Context, req TimeoutRequest) error
}

// Base carries the per-dispatch state every saga embeds: the bound record,
// the completion flag, and the lifecycle helpers. A Base is bound to exactly
// one record for the duration of one dispatch.
type Base struct {
	entity    Entity
	cfg       *Config
	scheduler TimeoutScheduler
	sagaType  string
	completed bool
	now       func() time.Time
}

func (b *Base) sagaBase() *Base { return b }

// Entity returns the bound saga record. Handlers type assert it to their
// concrete data type.
func (b *Base) Entity() Entity { return b.entity }

// IsCompleted reports whether MarkAsComplete has been called.
func (b *Base) IsCompleted() bool { return b.completed }

// MarkAsComplete marks the saga finished. The orchestrator removes the
// record from the persister when the current dispatch returns. Calling it
// more than once is harmless.
func (b *Base) MarkAsComplete() {
	meta := b.entity.Meta()
	meta.State = StateCompleted
	meta.LastUpdated = b.now()
	b.completed = true
}

// RequestTimeout arranges for msg to be delivered back into this saga
// instance after delay. The saga must declare a handler for msg's type; if
// it does not, the call fails before anything is scheduled.
func (b *Base) RequestTimeout(ctx context.Context, delay time.Duration, msg any) error {
	return b.RequestTimeoutAt(ctx, b.now().Add(delay), msg)
}

// RequestTimeoutAt is RequestTimeout with an absolute delivery time.
func (b *Base) RequestTimeoutAt(ctx context.Context, at time.Time, msg any) error {
	if !b.cfg.CanHandle(msg) {
		return fmt.Errorf("%w: %T in saga %q", ErrNoTimeoutHandler, msg, b.sagaType)
	}
	if b.scheduler == nil {
		return fmt.Errorf("%w: saga %q", ErrNoTimeoutScheduler, b.sagaType)
	}
	return b.scheduler.ScheduleTimeout(ctx, TimeoutRequest{
		SagaType:      b.sagaType,
		CorrelationID: b.entity.Meta().CorrelationID,
		Message:       msg,
		At:            at,
	})
}

// ReplyToOriginator sends msg to the endpoint that started this saga. It
// fails if the record has no originator rather than dropping the reply.
func (b *Base) ReplyToOriginator(ctx context.Context, mctx MessageContext, msg any) error {
	origin := b.entity.Meta().Originator
	if origin == "" {
		return fmt.Errorf("%w: saga %q correlation %q", ErrNoOriginator, b.sagaType, b.entity.Meta().CorrelationID)
	}
	return mctx.SendTo(ctx, origin, msg)
}

// Binding pairs one saga instance with the record it operates on for a
// single dispatch.
type Binding struct {
	saga Saga
	base *Base
	cfg  *Config
}

// Bind initializes a fresh saga instance against entity. The orchestrator
// calls it once per dispatch; application code only needs it when driving a
// saga by hand in tests.
func Bind(s Saga, entity Entity, sagaType string, scheduler TimeoutScheduler) (*Binding, error) {
	cfg := NewConfig()
	s.Init(cfg)
	if err := cfg.Err(); err != nil {
		return nil, fmt.Errorf("init saga %q: %w", sagaType, err)
	}

	base := s.sagaBase()
	base.entity = entity
	base.cfg = cfg
	base.scheduler = scheduler
	base.sagaType = sagaType
	if base.now == nil {
		base.now = time.Now
	}

	return &Binding{saga: s, base: base, cfg: cfg}, nil
}

// Saga returns the bound saga instance.
func (bd *Binding) Saga() Saga { return bd.saga }

// Entity returns the bound record.
func (bd *Binding) Entity() Entity { return bd.base.entity }

// IsCompleted reports whether the bound saga called MarkAsComplete.
func (bd *Binding) IsCompleted() bool { return bd.base.completed }

// CanHandle reports whether the saga declares a handler for msg's type.
func (bd *Binding) CanHandle(msg any) bool { return bd.cfg.CanHandle(msg) }

// Handle resolves the handler for msg's concrete type and invokes it. A
// message with no declared handler is a deliberate no-op, not an error;
// workflows ignore message types they do not care about in some states.
func (bd *Binding) Handle(ctx context.Context, mctx MessageContext, msg any) error {
	t := reflect.TypeOf(msg)
	if t == nil {
		return nil
	}
	fn, ok := bd.cfg.resolve(t)
	if !ok {
		return nil
	}
	return fn(ctx, mctx, msg)
}
