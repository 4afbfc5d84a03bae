package model

import "time"

// ScaleExpectationKind distinguishes the two shapes a scale-lock can expect.
type ScaleExpectationKind int

const (
	ExpectState ScaleExpectationKind = iota
	ExpectGone
)

// ScaleExpectation is the pending outcome a ScaleLock is waiting for.
type ScaleExpectation struct {
	Kind  ScaleExpectationKind
	State NodeState // only meaningful when Kind == ExpectState
}

func ExpectNodeState(s NodeState) ScaleExpectation {
	return ScaleExpectation{Kind: ExpectState, State: s}
}

func ExpectNodeGone() ScaleExpectation {
	return ScaleExpectation{Kind: ExpectGone}
}

// Fulfilled reports whether the expectation matches the node's current
// observed NodeState. present == false means the node has been removed
// from the scaler's map.
func (e ScaleExpectation) Fulfilled(present bool, state NodeState) bool {
	switch e.Kind {
	case ExpectGone:
		return !present
	case ExpectState:
		return present && state == e.State
	default:
		return false
	}
}

// Cooldowns bound how soon and how late a ScaleLock may release.
type Cooldowns struct {
	Min    time.Duration // zero means no minimum
	HasMin bool
	Max    time.Duration // mandatory — the lock always releases by CreatedAt+Max
}

// ScaleLock is a pending expectation about a specific node's future state.
// It suppresses further scaling decisions until it is fulfilled (and past
// any minimum cooldown) or it hits its maximum cooldown.
type ScaleLock struct {
	ID          string
	Hostname    string
	Expectation ScaleExpectation
	Cooldowns   Cooldowns
	CreatedAt   time.Time
}

// ReadyToRelease reports whether the lock should be dropped on this tick.
func (l ScaleLock) ReadyToRelease(now time.Time, present bool, state NodeState) bool {
	if now.Sub(l.CreatedAt) >= l.Cooldowns.Max {
		return true
	}
	if !l.Expectation.Fulfilled(present, state) {
		return false
	}
	if l.Cooldowns.HasMin && now.Sub(l.CreatedAt) < l.Cooldowns.Min {
		return false
	}
	return true
}
