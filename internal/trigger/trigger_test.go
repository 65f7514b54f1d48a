package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masterctl/internal/protocol"
)

func collector() (*[]string, Dispatcher) {
	var sent []string
	return &sent, func(cmd protocol.Command) error {
		sent = append(sent, cmd.Format())
		return nil
	}
}

func TestTimerFinishedFiresOnce(t *testing.T) {
	sent, dispatch := collector()
	e := NewEngine(dispatch)

	_, err := e.Register(Trigger{
		Kind:   TimerFinished,
		Action: protocol.ActionSpec{Type: protocol.ActionBuzzerBeep, Params: "500"},
	})
	require.NoError(t, err)

	e.Evaluate(protocol.ParseEvent("COUNTDOWN:FINISHED"))
	assert.Equal(t, []string{"BUZZER:BEEP:500"}, *sent)
	assert.Empty(t, e.Pending(), "fired trigger must leave the pending set")

	// A second completion must not re-fire.
	e.Evaluate(protocol.ParseEvent("COUNTDOWN:FINISHED"))
	assert.Len(t, *sent, 1)
}

func TestTimeEqualsExactMatchOnly(t *testing.T) {
	sent, dispatch := collector()
	e := NewEngine(dispatch)

	_, err := e.Register(Trigger{
		Kind:       TimeEquals,
		TargetTime: "07:15:00",
		Action:     protocol.ActionSpec{Type: protocol.ActionLedBlink, Params: "250"},
	})
	require.NoError(t, err)

	for _, tick := range []string{"07:14:58", "07:14:59"} {
		e.Evaluate(protocol.ParseEvent("CLOCK:LCD:" + tick))
	}
	assert.Empty(t, *sent)

	e.Evaluate(protocol.ParseEvent("CLOCK:LCD:07:15:00"))
	assert.Equal(t, []string{"LED:BLINK:250"}, *sent)

	// Equal and later ticks never re-fire.
	for _, tick := range []string{"07:15:00", "07:15:01", "07:16:00"} {
		e.Evaluate(protocol.ParseEvent("CLOCK:LCD:" + tick))
	}
	assert.Len(t, *sent, 1)
}

func TestDistanceLessThanEdgeCases(t *testing.T) {
	sent, dispatch := collector()
	e := NewEngine(dispatch)

	_, err := e.Register(Trigger{
		Kind:        DistanceLessThan,
		ThresholdCM: 10,
		Action:      protocol.ActionSpec{Type: protocol.ActionLedBlink, Params: "100"},
	})
	require.NoError(t, err)

	// Sentinel -1 (no echo) must never fire.
	e.Evaluate(protocol.ParseEvent("DISTANCE:-1"))
	assert.Empty(t, *sent)

	for _, d := range []string{"20.00", "15.00", "8.00", "5.00"} {
		e.Evaluate(protocol.ParseEvent("DISTANCE:" + d))
	}
	assert.Equal(t, []string{"LED:BLINK:100"}, *sent, "fires exactly once, at the first value below threshold")
}

func TestDuplicateTriggersAllFireInOrder(t *testing.T) {
	sent, dispatch := collector()
	e := NewEngine(dispatch)

	_, err := e.Register(Trigger{Kind: TimerFinished, Action: protocol.ActionSpec{Type: protocol.ActionBuzzerBeep, Params: "100"}})
	require.NoError(t, err)
	_, err = e.Register(Trigger{Kind: TimerFinished, Action: protocol.ActionSpec{Type: protocol.ActionStartTimer, Params: "02:00"}})
	require.NoError(t, err)
	_, err = e.Register(Trigger{Kind: TimerFinished, Action: protocol.ActionSpec{Type: protocol.ActionBuzzerBeep, Params: "300"}})
	require.NoError(t, err)

	e.Evaluate(protocol.ParseEvent("COUNTDOWN:FINISHED"))
	assert.Equal(t, []string{"BUZZER:BEEP:100", "TM1637:COUNTDOWN:120", "BUZZER:BEEP:300"}, *sent)
	assert.Empty(t, e.Pending())
}

func TestRegisterRejectsInvalidAction(t *testing.T) {
	_, dispatch := collector()
	e := NewEngine(dispatch)

	_, err := e.Register(Trigger{Kind: TimerFinished, Action: protocol.ActionSpec{Type: protocol.ActionStartTimer, Params: "90"}})
	assert.Error(t, err)

	_, err = e.Register(Trigger{Kind: "on_sunrise", Action: protocol.ActionSpec{Type: protocol.ActionBuzzerBeep}})
	assert.Error(t, err)

	assert.Empty(t, e.Pending())
}

func TestClearDropsPendingWithoutDispatch(t *testing.T) {
	sent, dispatch := collector()
	e := NewEngine(dispatch)

	e.Register(Trigger{Kind: TimerFinished, Action: protocol.ActionSpec{Type: protocol.ActionBuzzerBeep}})
	e.Register(Trigger{Kind: DistanceLessThan, ThresholdCM: 5, Action: protocol.ActionSpec{Type: protocol.ActionLedBlink}})

	assert.Equal(t, 2, e.Clear())
	assert.Empty(t, e.Pending())

	e.Evaluate(protocol.ParseEvent("COUNTDOWN:FINISHED"))
	assert.Empty(t, *sent)
}

// A trigger whose action starts another timer may itself be watched by a
// later registration; firing happens through the same dispatch path.
func TestChainedRegistrationDuringDispatch(t *testing.T) {
	var sent []string
	var e *Engine
	e = NewEngine(func(cmd protocol.Command) error {
		sent = append(sent, cmd.Format())
		if cmd.Device == "TM1637" && cmd.Action == "COUNTDOWN" {
			// The chained action re-enters the command path; register a
			// follow-up trigger the way a caller would.
			_, err := e.Register(Trigger{
				Kind:   TimerFinished,
				Action: protocol.ActionSpec{Type: protocol.ActionBuzzerBeep, Params: "200"},
			})
			return err
		}
		return nil
	})

	e.Register(Trigger{Kind: TimerFinished, Action: protocol.ActionSpec{Type: protocol.ActionStartTimer, Params: "00:05"}})

	e.Evaluate(protocol.ParseEvent("COUNTDOWN:FINISHED"))
	assert.Equal(t, []string{"TM1637:COUNTDOWN:5"}, sent)
	require.Len(t, e.Pending(), 1)

	e.Evaluate(protocol.ParseEvent("COUNTDOWN:FINISHED"))
	assert.Equal(t, []string{"TM1637:COUNTDOWN:5", "BUZZER:BEEP:200"}, sent)
}
