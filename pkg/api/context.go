package api

import "context"

// MessageContext exposes the messaging operations available to a saga while
// it handles one message, plus the correlation id the upstream dispatcher
// computed for the in-flight message. Contexts are per-call and never shared
// across dispatches.
type MessageContext interface {
	// CorrelationID is the key identifying the saga instance this message
	// belongs to, computed by the dispatcher from the declared correlation
	// rules.
	CorrelationID() string

	// MessageID identifies the in-flight message.
	MessageID() string

	// Origin names the endpoint the message came from.
	Origin() string

	// Send delivers a command to the local endpoint.
	Send(ctx context.Context, msg any) error

	// SendTo delivers a command to a named endpoint.
	SendTo(ctx context.Context, destination string, msg any) error

	// Publish delivers an event to all subscribers.
	Publish(ctx context.Context, event any) error

	// Reply delivers a message back to the origin of the in-flight message.
	Reply(ctx context.Context, msg any) error
}

// Transport carries outgoing messages for DeliveryContext. Concrete message
// buses (AMQP, in-process, ...) are external collaborators; the loopback
// transport in the root package is the only one bundled.
type Transport interface {
	Send(ctx context.Context, destination string, msg any) error
	Publish(ctx context.Context, event any) error
}

// DeliveryContext is a basic MessageContext backed by a Transport. The
// timeout worker and LocalRunner use it; hosts with their own bus wire their
// own MessageContext instead.
type DeliveryContext struct {
	Correlation string
	Message     string
	From        string
	Local       string // destination used by Send
	Transport   Transport
}

var _ MessageContext = (*DeliveryContext)(nil)

func (d *DeliveryContext) CorrelationID() string { return d.Correlation }
func (d *DeliveryContext) MessageID() string     { return d.Message }
func (d *DeliveryContext) Origin() string        { return d.From }

func (d *DeliveryContext) Send(ctx context.Context, msg any) error {
	if d.Transport == nil {
		return ErrNoTransport
	}
	return d.Transport.Send(ctx, d.Local, msg)
}

func (d *DeliveryContext) SendTo(ctx context.Context, destination string, msg any) error {
	if d.Transport == nil {
		return ErrNoTransport
	}
	return d.Transport.Send(ctx, destination, msg)
}

func (d *DeliveryContext) Publish(ctx context.Context, event any) error {
	if d.Transport == nil {
		return ErrNoTransport
	}
	return d.Transport.Publish(ctx, event)
}

func (d *DeliveryContext) Reply(ctx context.Context, msg any) error {
	if d.Transport == nil {
		return ErrNoTransport
	}
	return d.Transport.Send(ctx, d.From, msg)
}
