// Package protocol implements the newline-delimited text protocol spoken
// between the host controller and the peripheral board.
//
// Outbound (host -> board) lines have the shape DEVICE:ACTION[:VALUE].
// Inbound (board -> host) lines are acknowledgments (OK:/ERROR:) or
// unsolicited status reports (TIMER:REMAINING:, COUNTDOWN:FINISHED,
// CLOCK:LCD:, DISTANCE:, STATUS:START..STATUS:END).
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFormat = errors.New("invalid command format")

// Command is one outbound instruction for the board.
type Command struct {
	Device string
	Action string
	Value  string
}

func (c Command) Format() string {
	if c.Action == "" {
		return c.Device
	}
	if c.Value == "" {
		return c.Device + ":" + c.Action
	}
	return c.Device + ":" + c.Action + ":" + c.Value
}

// ParseCommand splits a line on its first two separators. Device and action
// are case-normalized; the value is the untouched remainder so free-text
// payloads (LCD lines, clock sync strings) may contain further colons.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrInvalidFormat
	}
	parts := strings.SplitN(line, ":", 3)
	cmd := Command{Device: strings.ToUpper(parts[0])}
	if len(parts) > 1 {
		cmd.Action = strings.ToUpper(parts[1])
	}
	if len(parts) > 2 {
		cmd.Value = parts[2]
	}
	return cmd, nil
}

// EventKind discriminates parsed inbound lines.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventAck
	EventError
	EventTimerRemaining
	EventCountdownFinished
	EventClockTick
	EventDistance
	EventStatusStart
	EventStatusLine
	EventStatusEnd
)

func (k EventKind) String() string {
	switch k {
	case EventAck:
		return "ack"
	case EventError:
		return "error"
	case EventTimerRemaining:
		return "timer_remaining"
	case EventCountdownFinished:
		return "countdown_finished"
	case EventClockTick:
		return "clock_tick"
	case EventDistance:
		return "distance"
	case EventStatusStart:
		return "status_start"
	case EventStatusLine:
		return "status_line"
	case EventStatusEnd:
		return "status_end"
	}
	return "unknown"
}

// Event is one parsed inbound line. Only the fields relevant to Kind are
// populated; Raw always carries the original line.
type Event struct {
	Kind    EventKind
	Raw     string
	Device  string  // EventAck
	Action  string  // EventAck
	Value   string  // EventAck
	Message string  // EventError
	Seconds int     // EventTimerRemaining
	Time    string  // EventClockTick, "HH:MM:SS"
	CM      float64 // EventDistance, -1 means no echo
	Detail  string  // EventStatusLine
}

// ParseEvent classifies one inbound line. It never fails: lines that carry a
// known tag with a malformed payload, and lines with no known tag at all,
// come back as EventUnknown so the read loop can drop them and move on.
func ParseEvent(line string) Event {
	line = strings.TrimRight(line, "\r\n")
	ev := Event{Kind: EventUnknown, Raw: line}

	switch {
	case strings.HasPrefix(line, "OK:"):
		rest := strings.SplitN(line[len("OK:"):], ":", 3)
		ev.Kind = EventAck
		ev.Device = rest[0]
		if len(rest) > 1 {
			ev.Action = rest[1]
		}
		if len(rest) > 2 {
			ev.Value = rest[2]
		}

	case strings.HasPrefix(line, "ERROR:"):
		ev.Kind = EventError
		ev.Message = line[len("ERROR:"):]

	case strings.HasPrefix(line, "TIMER:REMAINING:"):
		n, err := strconv.Atoi(line[len("TIMER:REMAINING:"):])
		if err != nil {
			return ev
		}
		ev.Kind = EventTimerRemaining
		ev.Seconds = n

	case line == "COUNTDOWN:FINISHED":
		ev.Kind = EventCountdownFinished

	case strings.HasPrefix(line, "CLOCK:LCD:"):
		ev.Kind = EventClockTick
		ev.Time = line[len("CLOCK:LCD:"):]

	case strings.HasPrefix(line, "DISTANCE:"):
		cm, err := strconv.ParseFloat(line[len("DISTANCE:"):], 64)
		if err != nil {
			return ev
		}
		ev.Kind = EventDistance
		ev.CM = cm

	case line == "STATUS:START":
		ev.Kind = EventStatusStart

	case line == "STATUS:END":
		ev.Kind = EventStatusEnd

	case strings.HasPrefix(line, "STATUS:"):
		ev.Kind = EventStatusLine
		ev.Detail = line[len("STATUS:"):]
	}
	return ev
}

// ActionType names what a fired trigger does.
type ActionType string

const (
	ActionBuzzerBeep     ActionType = "buzzer_beep"
	ActionStartTimer     ActionType = "start_timer"
	ActionLedBlink       ActionType = "led_blink"
	ActionDisplayMessage ActionType = "display_message"
)

// ActionSpec is a trigger's action with its raw parameter string:
// a millisecond count for buzzer_beep/led_blink, MM:SS for start_timer,
// "line1|line2" for display_message.
type ActionSpec struct {
	Type   ActionType
	Params string
}

// Commands resolves the action into the outbound command(s) it dispatches.
// Parameter defaults match the board's lenient handling: an empty duration
// falls back rather than failing.
func (a ActionSpec) Commands() ([]Command, error) {
	switch a.Type {
	case ActionBuzzerBeep:
		ms, err := actionMillis(a.Params, 1000)
		if err != nil {
			return nil, err
		}
		return []Command{{Device: "BUZZER", Action: "BEEP", Value: strconv.Itoa(ms)}}, nil

	case ActionStartTimer:
		parts := strings.SplitN(a.Params, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("start_timer params must be MM:SS, got %q", a.Params)
		}
		mins, err1 := strconv.Atoi(parts[0])
		secs, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || mins < 0 || secs < 0 || secs > 59 {
			return nil, fmt.Errorf("start_timer params must be MM:SS, got %q", a.Params)
		}
		total := mins*60 + secs
		return []Command{{Device: "TM1637", Action: "COUNTDOWN", Value: strconv.Itoa(total)}}, nil

	case ActionLedBlink:
		ms, err := actionMillis(a.Params, 1000)
		if err != nil {
			return nil, err
		}
		return []Command{{Device: "LED", Action: "BLINK", Value: strconv.Itoa(ms)}}, nil

	case ActionDisplayMessage:
		line1, line2 := a.Params, ""
		if i := strings.Index(a.Params, "|"); i >= 0 {
			line1, line2 = a.Params[:i], a.Params[i+1:]
		}
		cmds := []Command{{Device: "LCD", Action: "LINE1", Value: line1}}
		if line2 != "" {
			cmds = append(cmds, Command{Device: "LCD", Action: "LINE2", Value: line2})
		}
		return cmds, nil
	}
	return nil, fmt.Errorf("unknown action type %q", a.Type)
}

func actionMillis(params string, def int) (int, error) {
	if params == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(params)
	if err != nil {
		return 0, fmt.Errorf("duration must be an integer millisecond count, got %q", params)
	}
	return ms, nil
}
