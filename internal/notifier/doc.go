// Package notifier delivers watcher messages to the fixed chat destination.
//
// Delivery is synchronous: the poll loop needs to know whether a verdict
// reached the chat before it moves its cursor forward. Sends are throttled
// by a token bucket and bounded by a per-send timeout.
//
// # Failures
//
// Any transport failure is returned as *DeliveryError so callers can tell
// it apart from the faults they are reporting. The service never retries
// and never reports its own failures through the chat.
//
// # History
//
// A small in-memory history of delivered messages is kept for debugging.
package notifier
