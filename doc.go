// Package agent implements the agent loop core: a turn-based state machine
// that drives a multi-turn conversation between a user, a language model, and
// a set of externally-provided tools to a terminal state, orchestrating
// streaming, parallel tool execution with ordered result emission, intent
// tracing, and cooperative steering along the way.
package agent
