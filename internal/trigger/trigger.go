// Package trigger implements the conditional execution engine: a registry of
// condition/action pairs evaluated against incoming status events. Each
// trigger fires at most once — on the transition into its condition — and is
// removed from the pending set when it fires.
package trigger

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"masterctl/internal/protocol"
)

// Kind names a trigger condition.
type Kind string

const (
	// TimerFinished matches the countdown completion report.
	TimerFinished Kind = "timer_finished"
	// TimeEquals matches a clock tick whose HH:MM:SS equals the target
	// exactly. Equality, not "has passed": a skipped second under
	// scheduler jitter means a missed trigger.
	TimeEquals Kind = "time_equals"
	// DistanceLessThan matches a valid (non-sentinel) reading below the
	// threshold.
	DistanceLessThan Kind = "distance_less_than"
)

// Trigger is one registered condition/action pair.
type Trigger struct {
	ID          int
	Kind        Kind
	TargetTime  string  // TimeEquals
	ThresholdCM float64 // DistanceLessThan
	Action      protocol.ActionSpec
}

// Dispatcher sends a fired trigger's command through the normal synchronous
// command path, so chained triggers re-enter the loop like any user command.
type Dispatcher func(protocol.Command) error

type Engine struct {
	dispatch Dispatcher

	// OnFire, when set, observes every fired trigger (metrics hook).
	OnFire func(Trigger)

	mu      sync.Mutex
	nextID  int
	pending []Trigger
}

func NewEngine(dispatch Dispatcher) *Engine {
	return &Engine{dispatch: dispatch, nextID: 1}
}

// Register validates the trigger's action and appends it to the pending set.
// Duplicate conditions are legal; each registration fires independently.
func (e *Engine) Register(t Trigger) (int, error) {
	if _, err := t.Action.Commands(); err != nil {
		return 0, fmt.Errorf("invalid trigger action: %w", err)
	}
	switch t.Kind {
	case TimerFinished, TimeEquals, DistanceLessThan:
	default:
		return 0, fmt.Errorf("unknown trigger kind %q", t.Kind)
	}

	e.mu.Lock()
	t.ID = e.nextID
	e.nextID++
	e.pending = append(e.pending, t)
	n := len(e.pending)
	e.mu.Unlock()

	log.Info().
		Str("kind", string(t.Kind)).
		Str("action", string(t.Action.Type)).
		Int("pending", n).
		Msg("Trigger registered")
	return t.ID, nil
}

// Evaluate tests every pending trigger against one event, in registration
// order. All matches fire within this call and are removed before their
// actions dispatch, so a re-entrant event cannot fire them twice.
func (e *Engine) Evaluate(ev protocol.Event) {
	e.mu.Lock()
	var fired []Trigger
	remaining := e.pending[:0]
	for _, t := range e.pending {
		if matches(t, ev) {
			fired = append(fired, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	e.pending = remaining
	e.mu.Unlock()

	for _, t := range fired {
		e.fire(t)
	}
}

func (e *Engine) fire(t Trigger) {
	log.Info().
		Int("id", t.ID).
		Str("kind", string(t.Kind)).
		Str("action", string(t.Action.Type)).
		Msg("Trigger fired")

	if e.OnFire != nil {
		e.OnFire(t)
	}

	cmds, err := t.Action.Commands()
	if err != nil {
		// Validated at registration; only reachable if the action mutated.
		log.Error().Err(err).Int("id", t.ID).Msg("Trigger action no longer resolvable")
		return
	}
	for _, cmd := range cmds {
		if err := e.dispatch(cmd); err != nil {
			log.Error().Err(err).Str("command", cmd.Format()).Msg("Trigger dispatch failed")
		}
	}
}

func matches(t Trigger, ev protocol.Event) bool {
	switch t.Kind {
	case TimerFinished:
		return ev.Kind == protocol.EventCountdownFinished
	case TimeEquals:
		return ev.Kind == protocol.EventClockTick && ev.Time == t.TargetTime
	case DistanceLessThan:
		return ev.Kind == protocol.EventDistance && ev.CM >= 0 && ev.CM < t.ThresholdCM
	}
	return false
}

// Pending returns a copy of the pending triggers in registration order.
func (e *Engine) Pending() []Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trigger, len(e.pending))
	copy(out, e.pending)
	return out
}

// Clear drops all pending triggers without touching the board, and reports
// how many were dropped.
func (e *Engine) Clear() int {
	e.mu.Lock()
	n := len(e.pending)
	e.pending = nil
	e.mu.Unlock()
	if n > 0 {
		log.Info().Int("cleared", n).Msg("Pending triggers cleared")
	}
	return n
}
