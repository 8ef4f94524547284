// Package conduit provides a saga orchestration engine for Go.
//
// Conduit coordinates long-running, multi-step business workflows ("sagas")
// that react to a sequence of correlated messages, keep durable state
// between messages, and apply compensating actions on failure — without a
// two-phase-commit transaction. It runs fully in Go, supports multiple
// persistence backends, and integrates into an existing message bus through
// two small contracts.
//
// # Core Concepts
//
// The conduit programming model is intentionally small:
//
//  1. Saga
//  2. Record
//  3. Orchestrator
//  4. Persister
//  5. Timeout Worker
//  6. LocalRunner
//
// # Saga
//
// A Saga is one workflow's behavior. It embeds api.Base and declares, in
// Init, a handler per message type plus the correlation rules that map each
// message to the instance owning it:
//
//	type OrderSaga struct {
//	    api.Base
//	}
//
//	func (s *OrderSaga) Init(cfg *api.Config) {
//	    cfg.HandleFunc(CreateOrder{}, s.handleCreate)
//	    cfg.HandleFunc(PaymentReceived{}, s.handlePayment)
//	    cfg.Correlation().
//	        CorrelateByCorrelationID(CreateOrder{}, orderID).
//	        CorrelateByCorrelationID(PaymentReceived{}, orderID)
//	}
//
// Handlers mutate the bound record (Entity), may send or publish messages
// through the MessageContext, may request durable timeouts, and call
// MarkAsComplete when the workflow is finished.
//
// # Record
//
// A Record is the durable state of one saga instance. Application data
// embeds api.Record, so workflow fields and the framework fields (identity,
// correlation id, originator, timestamps, state label) travel together
// through the persister. For a given (saga type, correlation id) pair at
// most one non-completed record exists; completion removes the record in the
// same orchestration step.
//
// # Orchestrator
//
// The Orchestrator registers saga types, finds-or-creates the record for an
// incoming message's correlation id, dispatches the message into the saga,
// and persists or removes the record. Dispatch for the same correlation id
// is serialized; distinct ids run fully in parallel.
//
// Orchestrators can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//   - MongoDB
//
// # Persister and Timeout Worker
//
// The Persister is a key/value contract over (saga type, correlation id);
// hosts may bring their own backend. Timeouts are durable: RequestTimeout
// enqueues a (due time, saga type, correlation id, message) task into a
// delay queue, and a worker.Worker delivers it back into HandleMessage once
// due.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory orchestrator, delay queue, worker, and a
// loopback transport into a single process-local helper. It plays the
// dispatcher role — computing correlation ids from the declared rules — and
// records outgoing messages for inspection, which makes it the most
// convenient way to exercise sagas in tests and development. It is
// intentionally not crash-durable.
package conduit
