// Package subscription tracks which subscribers are interested in which
// device paths and decides when to subscribe at the protocol level.
//
// # Reference Counting
//
// Interest is counted per path, not per widget. The first handle that adds
// interest in a path creates the entry and causes a subscribe; later
// handles only join the entry. Every AddInterest issues a one-shot get so
// the new handle receives the current value even when the path was already
// subscribed.
//
//	AddInterest(p, h1)  -> subscribe p, get p
//	AddInterest(p, h2)  -> get p
//	RemoveInterest(p, h1)
//	RemoveInterest(p, h2) -> entry removed (no unsubscribe is sent)
//
// The control API has no unsubscribe; pushes for paths nobody tracks any
// longer simply find no handles.
//
// # Replay
//
// The device forgets subscriptions with the socket. After every
// (re)connection ReplayAll sends subscribe and get for each known path, in
// the order the paths were first registered. If the connection is not open
// yet, replay retries on a timer until it is. Only one replay timer exists
// at any time.
//
// # Ownership
//
// Like the connection manager, a Registry holds no lock. Its owner
// serializes all calls; the replay timer posts to the owner's executor.
package subscription
