// Package relay holds the peer session engine of the signal relay: the peer
// registry, the push channel bindings, message delivery, presence tracking and
// the connect/attach/detach/disconnect lifecycle.
//
// Every mutation happens under a single Manager mutex. Code running under the
// mutex (sweeps, broadcasts, queue drains) only uses the *Locked helpers and
// never re-acquires it.
package relay
