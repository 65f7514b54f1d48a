package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masterctl/internal/board"
	"masterctl/internal/link"
	"masterctl/internal/monitor"
	"masterctl/internal/protocol"
	"masterctl/internal/snapshot"
	"masterctl/internal/trigger"
)

// rig wires a controller to a real board over an in-memory link, so every
// test exercise runs the full exchange: format, write, route, acknowledge.
type rig struct {
	ctl    *Controller
	engine *trigger.Engine
	periph *board.SimPeripherals
	snap   *snapshot.Snapshot

	mu        sync.Mutex
	triggered []string
}

func newRig(t *testing.T) *rig {
	t.Helper()
	hostConn, boardConn := link.Pipe()

	r := &rig{periph: board.NewSimPeripherals(), snap: snapshot.New()}

	b := board.New(r.periph, func(line string) { _ = boardConn.WriteLine(line) })
	b.Sleep = func(time.Duration) {} // skip the countdown finish beeps

	r.engine = trigger.NewEngine(func(cmd protocol.Command) error {
		r.mu.Lock()
		r.triggered = append(r.triggered, cmd.Format())
		r.mu.Unlock()
		return r.ctl.DispatchTrigger(cmd)
	})
	mon := monitor.New(hostConn, r.snap, r.engine)
	r.ctl = New(hostConn, mon, r.engine, r.snap)
	r.ctl.AckTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx, boardConn)
	go mon.Run(ctx)

	t.Cleanup(func() {
		cancel()
		hostConn.Close()
		boardConn.Close()
	})
	return r
}

func (r *rig) firedCommands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.triggered))
	copy(out, r.triggered)
	return out
}

func TestCommandsReachPeripherals(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctl.LedOn())
	assert.True(t, r.periph.Snapshot().LED)

	require.NoError(t, r.ctl.LedOff())
	assert.False(t, r.periph.Snapshot().LED)

	require.NoError(t, r.ctl.BuzzerOn())
	assert.True(t, r.periph.Snapshot().Buzzer)
	require.NoError(t, r.ctl.BuzzerOff())

	require.NoError(t, r.ctl.LCDShowMessage("Hello", "World"))
	st := r.periph.Snapshot()
	assert.Equal(t, "Hello", st.LCDLines[0])
	assert.Equal(t, "World", st.LCDLines[1])

	require.NoError(t, r.ctl.DisplayNumber(42))
	assert.Equal(t, "  42", r.periph.Snapshot().Digits)
}

func TestValidationRejectsBeforeTransmission(t *testing.T) {
	r := newRig(t)

	assert.Error(t, r.ctl.DisplayNumber(10000))
	assert.Error(t, r.ctl.DisplayNumber(-1000))
	assert.Error(t, r.ctl.LCDWriteLine(3, "nope"))
	assert.Error(t, r.ctl.DisplayTimer(100, 0))
	assert.Error(t, r.ctl.DisplayTimer(5, 60))
	assert.Error(t, r.ctl.DisplayTime("9am"))
	assert.Error(t, r.ctl.CountdownDisplay(5941))

	// Nothing was sent, so the sim still holds its initial state.
	st := r.periph.Snapshot()
	assert.Empty(t, st.Digits)
	assert.Empty(t, st.LCDLines[0])
}

func TestLongLCDTextIsTruncated(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctl.LCDWriteLine(1, "this line is much longer than sixteen"))
	assert.Equal(t, "this line is muc", r.periph.Snapshot().LCDLines[0])
}

func TestBrightnessIsClamped(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctl.DisplayBrightness(99))
	assert.Equal(t, 15, r.periph.Snapshot().Brightness)

	require.NoError(t, r.ctl.DisplayBrightness(-3))
	assert.Equal(t, 0, r.periph.Snapshot().Brightness)
}

func TestDeviceErrorSurfacesToCaller(t *testing.T) {
	r := newRig(t)

	err := r.ctl.DispatchTrigger(protocol.Command{Device: "MOTOR", Action: "ON"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown device")
}

func TestAckTimeoutWhenBoardSilent(t *testing.T) {
	hostConn, boardConn := link.Pipe()
	snap := snapshot.New()
	engine := trigger.NewEngine(func(protocol.Command) error { return nil })
	mon := monitor.New(hostConn, snap, engine)
	ctl := New(hostConn, mon, engine, snap)
	ctl.AckTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go mon.Run(ctx)
	// Drain the board side without ever replying.
	go func() {
		for {
			if _, err := boardConn.ReadLine(); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		hostConn.Close()
		boardConn.Close()
	})

	err := ctl.LedOn()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAckTimeout))
}

func TestUltrasonicReadReturnsDistance(t *testing.T) {
	r := newRig(t)
	r.periph.SetDistance(42.5)

	cm, err := r.ctl.UltrasonicRead()
	require.NoError(t, err)
	assert.Equal(t, 42.5, cm)
}

func TestUltrasonicReadNoEcho(t *testing.T) {
	r := newRig(t)
	// Sim default is -1, the no-echo sentinel.

	_, err := r.ctl.UltrasonicRead()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoReading))
}

func TestTriggerRegistrationValidation(t *testing.T) {
	r := newRig(t)

	_, err := r.ctl.WhenTimeEquals("9:00:00", protocol.ActionBuzzerBeep, "500")
	assert.Error(t, err)

	_, err = r.ctl.WhenDistanceLessThan(-5, protocol.ActionLedBlink, "100")
	assert.Error(t, err)

	_, err = r.ctl.WhenTimerFinishes("open_pod_bay_doors", "")
	assert.Error(t, err)

	assert.Empty(t, r.ctl.PendingActions())
}

func TestClearPendingActions(t *testing.T) {
	r := newRig(t)

	_, err := r.ctl.WhenTimerFinishes(protocol.ActionBuzzerBeep, "500")
	require.NoError(t, err)
	_, err = r.ctl.WhenDistanceLessThan(10, protocol.ActionLedBlink, "100")
	require.NoError(t, err)

	assert.Len(t, r.ctl.PendingActions(), 2)
	assert.Equal(t, 2, r.ctl.ClearPendingActions())
	assert.Empty(t, r.ctl.PendingActions())
}

// A one-second countdown with a registered completion action: the board
// reports completion, the trigger fires through the normal command path,
// and the pending set empties.
func TestTimerFinishTriggersAction(t *testing.T) {
	r := newRig(t)

	_, err := r.ctl.WhenTimerFinishes(protocol.ActionBuzzerBeep, "500")
	require.NoError(t, err)
	require.NoError(t, r.ctl.DisplayTimer(0, 1))

	assert.Eventually(t, func() bool {
		fired := r.firedCommands()
		return len(fired) == 1 && fired[0] == "BUZZER:BEEP:500"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Empty(t, r.ctl.PendingActions())
	assert.Eventually(t, func() bool {
		st := r.ctl.Status()
		return !st.State.TimerActive
	}, time.Second, 20*time.Millisecond)
}

// Chained timers: when the first countdown finishes, its action starts the
// next one.
func TestTimerChainsIntoNextTimer(t *testing.T) {
	r := newRig(t)

	_, err := r.ctl.WhenTimerFinishes(protocol.ActionStartTimer, "00:02")
	require.NoError(t, err)
	require.NoError(t, r.ctl.DisplayTimer(0, 1))

	assert.Eventually(t, func() bool {
		fired := r.firedCommands()
		return len(fired) == 1 && fired[0] == "TM1637:COUNTDOWN:2"
	}, 5*time.Second, 20*time.Millisecond)

	// The chained countdown is live again on the board.
	assert.Eventually(t, func() bool {
		return r.ctl.Status().State.TimerActive
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDistanceTriggerFiresOnce(t *testing.T) {
	r := newRig(t)
	r.periph.SetDistance(50)

	_, err := r.ctl.WhenDistanceLessThan(20, protocol.ActionLedBlink, "100")
	require.NoError(t, err)
	require.NoError(t, r.ctl.UltrasonicStart())

	// Far readings leave the trigger armed.
	time.Sleep(600 * time.Millisecond)
	assert.Len(t, r.ctl.PendingActions(), 1)

	r.periph.SetDistance(8)
	assert.Eventually(t, func() bool {
		fired := r.firedCommands()
		return len(fired) == 1 && fired[0] == "LED:BLINK:100"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Empty(t, r.ctl.PendingActions())
}

func TestWelcomeMessageSequence(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctl.WelcomeMessage("Ada"))
	st := r.periph.Snapshot()
	assert.Equal(t, "Welcome!", st.LCDLines[0])
	assert.Equal(t, "Ada", st.LCDLines[1])
}

func TestCelebrationSequence(t *testing.T) {
	r := newRig(t)
	r.ctl.Sleep = func(time.Duration) {}

	require.NoError(t, r.ctl.Celebration())
	st := r.periph.Snapshot()
	assert.Equal(t, "Celebration!", st.LCDLines[0])
	assert.Equal(t, "Hooray!", st.LCDLines[1])
	assert.Equal(t, "8888", st.Digits)
}

func TestProximityAlertLevels(t *testing.T) {
	r := newRig(t)

	r.periph.SetDistance(5)
	cm, level, err := r.ctl.ProximityAlert()
	require.NoError(t, err)
	assert.Equal(t, 5.0, cm)
	assert.Equal(t, ProximityCritical, level)
	assert.Equal(t, "WARNING!", r.periph.Snapshot().LCDLines[0])

	r.periph.SetDistance(20)
	_, level, err = r.ctl.ProximityAlert()
	require.NoError(t, err)
	assert.Equal(t, ProximityWarning, level)
	assert.True(t, r.periph.Snapshot().LED)

	r.periph.SetDistance(80)
	_, level, err = r.ctl.ProximityAlert()
	require.NoError(t, err)
	assert.Equal(t, ProximityClear, level)
	assert.False(t, r.periph.Snapshot().LED)
	assert.Equal(t, "Clear", r.periph.Snapshot().LCDLines[0])
}

func TestDisplayInfo(t *testing.T) {
	r := newRig(t)

	n := 22
	require.NoError(t, r.ctl.DisplayInfo("Temperature", "22.5 C", &n))
	st := r.periph.Snapshot()
	assert.Equal(t, "Temperature", st.LCDLines[0])
	assert.Equal(t, "22.5 C", st.LCDLines[1])
	assert.Equal(t, "  22", st.Digits)

	require.NoError(t, r.ctl.DisplayInfo("Status", "Running", nil))
	assert.Equal(t, "  22", r.periph.Snapshot().Digits)
}

func TestAllOffResetsEverything(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctl.LedOn())
	require.NoError(t, r.ctl.BuzzerOn())
	require.NoError(t, r.ctl.LCDShowMessage("busy", "busy"))
	require.NoError(t, r.ctl.DisplayNumber(1234))
	require.NoError(t, r.ctl.UltrasonicStart())

	require.NoError(t, r.ctl.AllOff())

	st := r.periph.Snapshot()
	assert.False(t, st.LED)
	assert.False(t, st.Buzzer)
	assert.Empty(t, st.LCDLines[0])
	assert.Empty(t, st.Digits)
}

func TestRequestStatusCompletes(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.ctl.LedOn())
	require.NoError(t, r.ctl.RequestStatus())
}
