// Package actorkit is the supervision scaffolding of the autoscaler: a
// mailboxed, logically single-threaded actor (the group controller runs as
// one), addresses to it, and a non-overlapping periodic ticker. A
// goroutine owns its state exclusively and processes one message at a time
// from a buffered channel, rather than guarding shared state with locks.
package actorkit

import (
	"sync"
	"sync/atomic"
)

// DefaultMailboxSize is used by Spawn callers that don't need a specific
// buffer depth; generous enough that a slow external call doesn't make
// fire-and-forget sends from other actors block in the common case.
const DefaultMailboxSize = 64

// Actor runs handler on one message at a time, in arrival order, on a
// single goroutine. It never processes two messages concurrently.
type Actor[Msg any] struct {
	inbox   chan Msg
	handler func(Msg)
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
}

// Spawn starts a new actor and returns once its goroutine is running.
func Spawn[Msg any](mailboxSize int, handler func(Msg)) *Actor[Msg] {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	a := &Actor[Msg]{
		inbox:   make(chan Msg, mailboxSize),
		handler: handler,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Actor[Msg]) run() {
	defer close(a.done)
	for msg := range a.inbox {
		a.handler(msg)
	}
}

// Send enqueues msg without blocking the caller beyond mailbox backpressure.
// It is a silent no-op once the actor has stopped.
func (a *Actor[Msg]) Send(msg Msg) {
	if a.stopped.Load() {
		return
	}
	select {
	case a.inbox <- msg:
	case <-a.done:
	}
}

// Stop closes the mailbox; the actor finishes any in-flight message and
// drains what's already queued, then exits.
func (a *Actor[Msg]) Stop() {
	a.once.Do(func() {
		a.stopped.Store(true)
		close(a.inbox)
	})
}

// Done is closed once the actor's goroutine has returned.
func (a *Actor[Msg]) Done() <-chan struct{} { return a.done }

// Terminated reports whether the actor's goroutine has already returned.
func (a *Actor[Msg]) Terminated() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Address is a strong reference to an actor: holding one keeps the actor
// reachable for as long as the Address itself is reachable.
type Address[Msg any] struct {
	actor *Actor[Msg]
}

func (a *Actor[Msg]) Address() Address[Msg] { return Address[Msg]{actor: a} }

func (addr Address[Msg]) Send(msg Msg)          { addr.actor.Send(msg) }
func (addr Address[Msg]) Done() <-chan struct{} { return addr.actor.Done() }
func (addr Address[Msg]) Terminated() bool      { return addr.actor.Terminated() }
func (addr Address[Msg]) Stop()                 { addr.actor.Stop() }
