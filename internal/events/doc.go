// Package events publishes resource lifecycle events.
//
// Every resource operation the engine performs emits a "started" event and
// a "succeeded" or "failed" event. Events are JSON encoded and published to
// NATS on the subject anvil.resource.<op>; when no NATS URL is configured
// they are discarded.
package events
