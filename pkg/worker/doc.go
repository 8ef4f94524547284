// Package worker delivers due saga timeouts. A Worker pulls tasks from the
// delay queue the orchestrator enqueues into and hands each timeout message
// back to Orchestrator.HandleMessage once its due time has passed.
//
// Workers run as background goroutines and can be scaled horizontally when
// the queue backend supports competing consumers (SQLite, Redis).
package worker
