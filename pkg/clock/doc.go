// Package clock abstracts the timers used by the control-channel client.
//
// Every wait in the client (heartbeat interval, reconnect delay, subscription
// replay retry) is a callback scheduled through a Clock. Production code uses
// Real; tests use a Fake clock and step time explicitly with Advance, which
// fires due callbacks synchronously on the calling goroutine.
package clock
