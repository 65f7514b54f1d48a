// Package controller is the host's command surface: validated operations
// that format wire commands, send them over the link, and wait for the
// board's acknowledgment. Writes are serialized so a trigger-fired dispatch
// can never interleave with a user-issued command mid-exchange; replies
// come back through the status monitor's ack handoff, never a second
// reader.
package controller

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"masterctl/internal/journal"
	"masterctl/internal/link"
	"masterctl/internal/monitor"
	"masterctl/internal/protocol"
	"masterctl/internal/snapshot"
	"masterctl/internal/trigger"
)

var (
	ErrAckTimeout = errors.New("timed out waiting for acknowledgment")
	ErrNoReading  = errors.New("no echo from ultrasonic sensor")
)

var timeOfDayRE = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

const lcdWidth = 16

type Controller struct {
	conn   *link.Conn
	mon    *monitor.Monitor
	engine *trigger.Engine
	snap   *snapshot.Snapshot

	// Journal is optional; a nil journal records nothing.
	Journal *journal.Journal
	// Clock and Sleep are swappable for tests.
	Clock func() time.Time
	Sleep func(time.Duration)
	// AckTimeout bounds every command exchange; ReadTimeout bounds the
	// wait for a single-shot distance reading.
	AckTimeout  time.Duration
	ReadTimeout time.Duration

	writeMu sync.Mutex
}

func New(conn *link.Conn, mon *monitor.Monitor, engine *trigger.Engine, snap *snapshot.Snapshot) *Controller {
	return &Controller{
		conn:        conn,
		mon:         mon,
		engine:      engine,
		snap:        snap,
		Clock:       time.Now,
		Sleep:       time.Sleep,
		AckTimeout:  2 * time.Second,
		ReadTimeout: time.Second,
	}
}

// send runs one synchronous exchange: arm the ack slot, write the line,
// await the reply. Exactly one exchange is in flight at a time.
func (c *Controller) send(cmd protocol.Command, source string) (protocol.Event, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sendLocked(cmd, source)
}

func (c *Controller) sendLocked(cmd protocol.Command, source string) (protocol.Event, error) {
	line := cmd.Format()
	ch := c.mon.ArmAck()

	if err := c.Journal.RecordCommand(line, source); err != nil {
		log.Warn().Err(err).Msg("Failed to journal command")
	}

	if err := c.conn.WriteLine(line); err != nil {
		c.mon.CancelAck(ch)
		return protocol.Event{}, fmt.Errorf("failed to send %s: %w", line, err)
	}
	log.Debug().Str("command", line).Str("source", source).Msg("Command sent")

	select {
	case ev := <-ch:
		if ev.Kind == protocol.EventError {
			return ev, fmt.Errorf("device rejected %s: %s", line, ev.Message)
		}
		return ev, nil
	case <-time.After(c.AckTimeout):
		c.mon.CancelAck(ch)
		return protocol.Event{}, fmt.Errorf("%w: %s", ErrAckTimeout, line)
	}
}

func (c *Controller) sendSimple(device, action, value string) error {
	_, err := c.send(protocol.Command{Device: device, Action: action, Value: value}, journal.SourceUser)
	return err
}

// DispatchTrigger is the trigger engine's outbound path. Fired actions
// re-enter the same serialized exchange as user commands.
func (c *Controller) DispatchTrigger(cmd protocol.Command) error {
	_, err := c.send(cmd, journal.SourceTrigger)
	return err
}

// LED

func (c *Controller) LedOn() error     { return c.sendSimple("LED", "ON", "") }
func (c *Controller) LedOff() error    { return c.sendSimple("LED", "OFF", "") }
func (c *Controller) LedToggle() error { return c.sendSimple("LED", "TOGGLE", "") }

func (c *Controller) LedBlink(intervalMS int) error {
	return c.sendSimple("LED", "BLINK", strconv.Itoa(intervalMS))
}

// Buzzer

func (c *Controller) BuzzerOn() error  { return c.sendSimple("BUZZER", "ON", "") }
func (c *Controller) BuzzerOff() error { return c.sendSimple("BUZZER", "OFF", "") }

func (c *Controller) BuzzerBeep(durationMS int) error {
	return c.sendSimple("BUZZER", "BEEP", strconv.Itoa(durationMS))
}

// LCD

func (c *Controller) LCDWriteLine(line int, text string) error {
	if line != 1 && line != 2 {
		return fmt.Errorf("lcd line must be 1 or 2, got %d", line)
	}
	return c.sendSimple("LCD", fmt.Sprintf("LINE%d", line), truncate(text, lcdWidth))
}

func (c *Controller) LCDClear() error { return c.sendSimple("LCD", "CLEAR", "") }

func (c *Controller) LCDBacklight(on bool) error {
	if on {
		return c.sendSimple("LCD", "BACKLIGHT", "ON")
	}
	return c.sendSimple("LCD", "BACKLIGHT", "OFF")
}

func (c *Controller) LCDShowMessage(line1, line2 string) error {
	if err := c.LCDWriteLine(1, line1); err != nil {
		return err
	}
	if line2 == "" {
		return nil
	}
	return c.LCDWriteLine(2, line2)
}

// LCDShowCurrentTime arms the LCD live clock, seeded with the host's wall
// clock. The board keeps it ticking on its own afterward.
func (c *Controller) LCDShowCurrentTime() error {
	now := c.Clock()
	value := now.Format("15:04:05") + ":" + now.Format("01/02/2006") + ":" + now.Format("Mon")
	return c.sendSimple("LCD", "CLOCK", value)
}

func (c *Controller) LCDStartStopwatch() error { return c.sendSimple("LCD", "STOPWATCH", "START") }
func (c *Controller) LCDStopStopwatch() error  { return c.sendSimple("LCD", "STOPWATCH", "STOP") }

// 7-segment display

func (c *Controller) DisplayNumber(n int) error {
	if n < -999 || n > 9999 {
		return fmt.Errorf("number must be between -999 and 9999, got %d", n)
	}
	return c.sendSimple("TM1637", "NUM", strconv.Itoa(n))
}

// DisplayTime shows a fixed HHMM value. It does not tick; use
// DisplayCurrentTime for a live clock.
func (c *Controller) DisplayTime(hhmm string) error {
	if len(hhmm) != 4 {
		return fmt.Errorf("time must be 4 digits HHMM, got %q", hhmm)
	}
	for _, r := range hhmm {
		if r < '0' || r > '9' {
			return fmt.Errorf("time must be 4 digits HHMM, got %q", hhmm)
		}
	}
	return c.sendSimple("TM1637", "NUM", hhmm)
}

func (c *Controller) DisplayCurrentTime() error {
	return c.sendSimple("TM1637", "CLOCK", c.Clock().Format("15:04"))
}

func (c *Controller) DisplayStartStopwatch() error {
	return c.sendSimple("TM1637", "STOPWATCH", "START")
}

func (c *Controller) DisplayStopStopwatch() error {
	return c.sendSimple("TM1637", "STOPWATCH", "STOP")
}

func (c *Controller) DisplayClear() error { return c.sendSimple("TM1637", "CLEAR", "") }

// DisplayBrightness clamps to the panel's 0-15 range rather than rejecting,
// matching the board's own lenient handling.
func (c *Controller) DisplayBrightness(level int) error {
	if level < 0 {
		level = 0
	}
	if level > 15 {
		level = 15
	}
	return c.sendSimple("TM1637", "BRIGHTNESS", strconv.Itoa(level))
}

// DisplayTimer starts the live countdown. The board counts it down and
// reports completion on its own.
func (c *Controller) DisplayTimer(minutes, seconds int) error {
	if minutes < 0 || minutes > 99 || seconds < 0 || seconds > 59 {
		return fmt.Errorf("timer must be 0-99 minutes and 0-59 seconds, got %d:%02d", minutes, seconds)
	}
	return c.sendSimple("TM1637", "COUNTDOWN", strconv.Itoa(minutes*60+seconds))
}

// CountdownDisplay shows a static MMSS value without starting a countdown.
func (c *Controller) CountdownDisplay(seconds int) error {
	if seconds < 0 || seconds > 5940 {
		return fmt.Errorf("seconds must be between 0 and 5940, got %d", seconds)
	}
	return c.sendSimple("TM1637", "NUM", fmt.Sprintf("%02d%02d", seconds/60, seconds%60))
}

// Ultrasonic

func (c *Controller) UltrasonicStart() error { return c.sendSimple("ULTRA", "START", "") }
func (c *Controller) UltrasonicStop() error  { return c.sendSimple("ULTRA", "STOP", "") }

// UltrasonicRead takes one reading with a bounded wait. A no-echo sentinel
// and a silent sensor both come back as ErrNoReading, never a hang.
func (c *Controller) UltrasonicRead() (float64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	distCh := c.mon.ArmDistance()
	if _, err := c.sendLocked(protocol.Command{Device: "ULTRA", Action: "READ"}, journal.SourceUser); err != nil {
		c.mon.CancelDistance(distCh)
		return -1, err
	}

	select {
	case ev := <-distCh:
		if ev.CM < 0 {
			return -1, ErrNoReading
		}
		return ev.CM, nil
	case <-time.After(c.ReadTimeout):
		c.mon.CancelDistance(distCh)
		return -1, fmt.Errorf("%w: timed out after %s", ErrNoReading, c.ReadTimeout)
	}
}

// System

// RequestStatus asks the board to dump its bracketed state block. The lines
// arrive through the monitor, which logs and journals them; the trailing
// OK:STATUS:REPORT is the exchange's acknowledgment.
func (c *Controller) RequestStatus() error {
	_, err := c.send(protocol.Command{Device: "STATUS"}, journal.SourceUser)
	return err
}

// AllOff resets every device: LED off, buzzer silent, displays cleared,
// sensor stopped.
func (c *Controller) AllOff() error {
	for _, cmd := range []protocol.Command{
		{Device: "LED", Action: "OFF"},
		{Device: "BUZZER", Action: "OFF"},
		{Device: "LCD", Action: "CLEAR"},
		{Device: "TM1637", Action: "CLEAR"},
		{Device: "ULTRA", Action: "STOP"},
	} {
		if _, err := c.send(cmd, journal.SourceUser); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
