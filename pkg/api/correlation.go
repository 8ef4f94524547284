package api

import (
	"fmt"
	"reflect"
)

// KeyExtractor derives the correlation key for a saga from an incoming
// message. The message is passed as received; extractors typically type
// assert and read one field.
type KeyExtractor func(msg any) (string, error)

// CorrelationRule maps one message type to the key that identifies the saga
// instance owning messages of that type.
type CorrelationRule struct {
	// MessageKey extracts the key from the incoming message.
	MessageKey KeyExtractor

	// RecordField names the Record field the extracted key matches. The
	// bundled persisters look records up by correlation id only, so this is
	// "CorrelationID" for every rule produced by CorrelateByCorrelationID;
	// it is kept declarative so an external dispatcher with richer lookup
	// can honor other fields.
	RecordField string
}

// CorrelationConfig accumulates the correlation rules for one saga type. It
// is a declarative artifact: the orchestrator does not evaluate rules during
// dispatch, it expects MessageContext.CorrelationID to already carry the
// computed key. Upstream dispatchers (LocalRunner, or a host's bus binding)
// evaluate the rules via Orchestrator.CorrelationKey.
type CorrelationConfig struct {
	rules map[reflect.Type]CorrelationRule
}

// NewCorrelationConfig returns an empty configuration.
func NewCorrelationConfig() *CorrelationConfig {
	return &CorrelationConfig{rules: make(map[reflect.Type]CorrelationRule)}
}

// Correlate declares that for messages of prototype's concrete type, the key
// produced by extract identifies the saga whose record field named
// recordField matches it. All rules must be declared before the orchestrator
// dispatches messages of that type.
//
// Declaring a second rule for the same message type replaces the first:
// last registration wins.
func (c *CorrelationConfig) Correlate(prototype any, extract KeyExtractor, recordField string) *CorrelationConfig {
	c.rules[reflect.TypeOf(prototype)] = CorrelationRule{
		MessageKey:  extract,
		RecordField: recordField,
	}
	return c
}

// CorrelateByCorrelationID declares that the key extracted from messages of
// prototype's type is the saga's correlation id. This is the form every
// bundled persister can serve directly. Last registration wins, as with
// Correlate.
func (c *CorrelationConfig) CorrelateByCorrelationID(prototype any, extract KeyExtractor) *CorrelationConfig {
	return c.Correlate(prototype, extract, "CorrelationID")
}

// Rule returns the rule declared for msg's concrete type.
func (c *CorrelationConfig) Rule(msg any) (CorrelationRule, bool) {
	r, ok := c.rules[reflect.TypeOf(msg)]
	return r, ok
}

// KeyFor evaluates the rule for msg and returns the correlation key.
func (c *CorrelationConfig) KeyFor(msg any) (string, error) {
	rule, ok := c.rules[reflect.TypeOf(msg)]
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrNoCorrelationRule, msg)
	}
	key, err := rule.MessageKey(msg)
	if err != nil {
		return "", fmt.Errorf("extract correlation key from %T: %w", msg, err)
	}
	if key == "" {
		return "", fmt.Errorf("correlation key extracted from %T is empty", msg)
	}
	return key, nil
}

// Types returns the message types with declared rules.
func (c *CorrelationConfig) Types() []reflect.Type {
	out := make([]reflect.Type, 0, len(c.rules))
	for t := range c.rules {
		out = append(out, t)
	}
	return out
}
