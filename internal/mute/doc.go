// Package mute owns temporary mutes: the in-memory mute map, the single timer
// that expires them, startup recovery and rejoin handling, and coalesced
// persistence of the map to a durable store.
//
// All mute state lives inside the Scheduler goroutine. Callers interact with it
// through synchronous commands, so a Cancel has fully taken effect (timer
// disarmed, record removed) by the time it returns.
package mute
