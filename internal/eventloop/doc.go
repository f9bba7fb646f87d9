// Package eventloop provides a cooperative, single-goroutine callback queue.
//
// Every capture session owns one Loop. Visibility reports, decoder events and
// timers arrive on arbitrary goroutines and are posted to the session's loop,
// so the session's state machines are only ever touched by one goroutine and
// need no locks. Ordering between independently posted callbacks is not
// guaranteed; state machines built on a Loop must check their current state
// before acting on any callback.
package eventloop
