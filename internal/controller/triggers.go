package controller

import (
	"fmt"

	"masterctl/internal/protocol"
	"masterctl/internal/snapshot"
	"masterctl/internal/trigger"
)

// WhenTimerFinishes schedules one action for the next countdown completion.
func (c *Controller) WhenTimerFinishes(action protocol.ActionType, params string) (int, error) {
	return c.engine.Register(trigger.Trigger{
		Kind:   trigger.TimerFinished,
		Action: protocol.ActionSpec{Type: action, Params: params},
	})
}

// WhenTimeEquals schedules one action for the clock tick whose HH:MM:SS
// matches target exactly. The LCD clock must be running for ticks to arrive.
func (c *Controller) WhenTimeEquals(target string, action protocol.ActionType, params string) (int, error) {
	if !timeOfDayRE.MatchString(target) {
		return 0, fmt.Errorf("target time must be HH:MM:SS, got %q", target)
	}
	return c.engine.Register(trigger.Trigger{
		Kind:       trigger.TimeEquals,
		TargetTime: target,
		Action:     protocol.ActionSpec{Type: action, Params: params},
	})
}

// WhenDistanceLessThan schedules one action for the first valid reading
// below thresholdCM. Continuous monitoring must be running for readings to
// arrive unprompted.
func (c *Controller) WhenDistanceLessThan(thresholdCM float64, action protocol.ActionType, params string) (int, error) {
	if thresholdCM <= 0 {
		return 0, fmt.Errorf("threshold must be positive, got %.2f", thresholdCM)
	}
	return c.engine.Register(trigger.Trigger{
		Kind:        trigger.DistanceLessThan,
		ThresholdCM: thresholdCM,
		Action:      protocol.ActionSpec{Type: action, Params: params},
	})
}

// ClearPendingActions drops every registered trigger without touching the
// board, and reports how many were dropped.
func (c *Controller) ClearPendingActions() int {
	return c.engine.Clear()
}

// PendingActions lists the registered triggers in registration order.
func (c *Controller) PendingActions() []trigger.Trigger {
	return c.engine.Pending()
}

// StatusReport is the host-side view of the board: the last values the
// monitor folded in, plus whatever triggers are still armed.
type StatusReport struct {
	State   snapshot.State
	Pending []trigger.Trigger
}

// Status answers from the snapshot without a round trip to the board.
func (c *Controller) Status() StatusReport {
	return StatusReport{
		State:   c.snap.Get(),
		Pending: c.engine.Pending(),
	}
}
