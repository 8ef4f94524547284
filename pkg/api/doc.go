// Package api defines the public contracts of the conduit saga engine:
// records, sagas and their lifecycle helpers, correlation rules, the
// persister and message-context collaborator contracts, and the observer
// surface for logging and metrics.
//
// Most applications import the root conduit package, which re-exports these
// types and provides orchestrator constructors for the bundled persistence
// backends. This package exists so that alternative backends and transports
// can be written against the contracts without importing the engine.
package api
