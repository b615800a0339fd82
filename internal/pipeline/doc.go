// Package pipeline runs commands through an ordered chain of interceptors.
//
// A RunContext is a typed, single-assignment registry shared by everything
// that runs during one top-level invocation: configuration, repositories,
// connectors, the held lock. Values are keyed by *Key[T]; setting a key twice
// or reading an unset key is an error, so missing wiring fails fast instead
// of surfacing as a nil dereference deep inside a command.
//
// The first command executed with a RunContext goes through the full chain.
// Commands executed from inside it with the same RunContext call the target
// command directly, bypassing the chain. Nested commands therefore never try
// to take the lock they already hold, nor build services twice. Nested
// execution must stay on the goroutine that runs the outer command.
package pipeline
