package board

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"masterctl/internal/protocol"
)

// HandleLine routes one inbound command line: it mutates exactly the
// subsystem named by (device, action) and emits a single OK: acknowledgment
// echoing the resolved value, or a single ERROR: line. Malformed numeric
// values fall back to defaults rather than rejecting, so the acknowledged
// value is always the value actually applied.
func (b *Board) HandleLine(line string) {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		b.emit("ERROR:Invalid command format")
		return
	}

	log.Debug().Str("device", cmd.Device).Str("action", cmd.Action).Msg("Command received")

	if cmd.Device == "STATUS" && cmd.Action == "" {
		b.reportStatus()
		return
	}
	if cmd.Action == "" {
		b.emit("ERROR:Invalid command format")
		return
	}

	switch cmd.Device {
	case "LED":
		b.handleLED(cmd)
	case "BUZZER":
		b.handleBuzzer(cmd)
	case "LCD":
		b.handleLCD(cmd)
	case "TM1637":
		b.handleTM(cmd)
	case "ULTRA":
		b.handleUltra(cmd)
	default:
		b.emit("ERROR:Unknown device")
	}
}

func (b *Board) ok(device, action, value string) {
	if value == "" {
		b.emit("OK:" + device + ":" + action)
		return
	}
	b.emit("OK:" + device + ":" + action + ":" + value)
}

func (b *Board) handleLED(cmd protocol.Command) {
	switch cmd.Action {
	case "ON":
		b.led = ledState{on: true}
		b.periph.SetLED(true)
		b.ok("LED", "ON", "")
	case "OFF":
		b.led = ledState{}
		b.periph.SetLED(false)
		b.ok("LED", "OFF", "")
	case "BLINK":
		ms := parseIntDefault(cmd.Value, int(defaultBlinkInterval/time.Millisecond))
		if ms <= 0 {
			ms = int(defaultBlinkInterval / time.Millisecond)
		}
		b.led = ledState{
			on:       true,
			blinking: true,
			interval: time.Duration(ms) * time.Millisecond,
			lastTick: b.Clock(),
		}
		b.periph.SetLED(true)
		b.ok("LED", "BLINK", strconv.Itoa(ms))
	case "TOGGLE":
		b.led = ledState{on: !b.led.on}
		b.periph.SetLED(b.led.on)
		b.ok("LED", "TOGGLE", "")
	default:
		b.emit("ERROR:Invalid command format")
	}
}

func (b *Board) handleBuzzer(cmd protocol.Command) {
	switch cmd.Action {
	case "ON":
		b.buzzer = buzzerState{on: true}
		b.periph.SetBuzzer(true)
		b.ok("BUZZER", "ON", "")
	case "OFF":
		b.buzzer = buzzerState{}
		b.periph.SetBuzzer(false)
		b.ok("BUZZER", "OFF", "")
	case "BEEP":
		ms := parseIntDefault(cmd.Value, int(defaultBeepDuration/time.Millisecond))
		if ms <= 0 {
			ms = int(defaultBeepDuration / time.Millisecond)
		}
		b.buzzer = buzzerState{
			on:      true,
			beeping: true,
			offAt:   b.Clock().Add(time.Duration(ms) * time.Millisecond),
		}
		b.periph.SetBuzzer(true)
		b.ok("BUZZER", "BEEP", strconv.Itoa(ms))
	default:
		b.emit("ERROR:Invalid command format")
	}
}

func (b *Board) handleLCD(cmd protocol.Command) {
	switch cmd.Action {
	case "LINE1", "LINE2":
		// A static write replaces whatever live mode owned the display.
		n := 1
		if cmd.Action == "LINE2" {
			n = 2
		}
		text := trimLCD(cmd.Value)
		b.lcd.mode = ModeStatic
		b.periph.WriteLCD(n, text)
		b.ok("LCD", cmd.Action, text)
	case "CLEAR":
		b.lcd = lcdState{}
		b.periph.ClearLCD()
		b.ok("LCD", "CLEAR", "")
	case "BACKLIGHT":
		on := !strings.EqualFold(cmd.Value, "OFF")
		b.periph.SetBacklight(on)
		if on {
			b.ok("LCD", "BACKLIGHT", "ON")
		} else {
			b.ok("LCD", "BACKLIGHT", "OFF")
		}
	case "CLOCK":
		// Value: HH:MM:SS:Date:Day, supplied by the host at activation.
		parts := strings.SplitN(cmd.Value, ":", 5)
		st := lcdState{mode: ModeClock, lastTick: b.Clock()}
		if len(parts) > 0 {
			st.h = parseIntDefault(parts[0], 0) % 24
		}
		if len(parts) > 1 {
			st.m = parseIntDefault(parts[1], 0) % 60
		}
		if len(parts) > 2 {
			st.s = parseIntDefault(parts[2], 0) % 60
		}
		if len(parts) > 3 {
			st.date = parts[3]
		}
		if len(parts) > 4 {
			st.day = parts[4]
		}
		b.lcd = st
		b.renderLCDClock()
		b.ok("LCD", "CLOCK", formatHMS(st.h, st.m, st.s))
	case "STOPWATCH":
		switch strings.ToUpper(cmd.Value) {
		case "START":
			b.lcd = lcdState{mode: ModeStopwatch, lastTick: b.Clock()}
			b.renderLCDStopwatch()
			b.ok("LCD", "STOPWATCH", "START")
		case "STOP":
			b.lcd = lcdState{}
			b.periph.ClearLCD()
			b.ok("LCD", "STOPWATCH", "STOP")
		default:
			b.emit("ERROR:Invalid command format")
		}
	default:
		b.emit("ERROR:Invalid command format")
	}
}

func (b *Board) handleTM(cmd protocol.Command) {
	switch cmd.Action {
	case "NUM":
		digits := cmd.Value
		if len(digits) > 4 {
			digits = digits[len(digits)-4:]
		}
		b.tm = tmState{mode: ModeStatic}
		b.periph.ShowDigits(fmt.Sprintf("%4s", digits), false)
		b.ok("TM1637", "NUM", digits)
	case "CLEAR":
		b.tm = tmState{}
		b.periph.ClearDigits()
		b.ok("TM1637", "CLEAR", "")
	case "BRIGHTNESS":
		level := parseIntDefault(cmd.Value, 15)
		if level < 0 {
			level = 0
		}
		if level > 15 {
			level = 15
		}
		// Brightness does not change the display mode.
		b.periph.SetBrightness(level)
		b.ok("TM1637", "BRIGHTNESS", strconv.Itoa(level))
	case "CLOCK":
		parts := strings.SplitN(cmd.Value, ":", 2)
		st := tmState{mode: ModeClock, lastTick: b.Clock(), colon: true}
		if len(parts) > 0 {
			st.h = parseIntDefault(parts[0], 0) % 24
		}
		if len(parts) > 1 {
			st.m = parseIntDefault(parts[1], 0) % 60
		}
		b.tm = st
		b.periph.ShowDigits(fmt.Sprintf("%02d%02d", st.h, st.m), true)
		b.ok("TM1637", "CLOCK", fmt.Sprintf("%02d:%02d", st.h, st.m))
	case "STOPWATCH":
		switch strings.ToUpper(cmd.Value) {
		case "START":
			b.tm = tmState{mode: ModeStopwatch, lastTick: b.Clock()}
			b.periph.ShowDigits("0000", true)
			b.ok("TM1637", "STOPWATCH", "START")
		case "STOP":
			b.tm = tmState{}
			b.periph.ClearDigits()
			b.ok("TM1637", "STOPWATCH", "STOP")
		default:
			b.emit("ERROR:Invalid command format")
		}
	case "COUNTDOWN":
		secs := parseIntDefault(cmd.Value, defaultCountdownSecs)
		if secs < 0 {
			secs = 0
		}
		if secs > maxCountdownSecs {
			secs = maxCountdownSecs
		}
		now := b.Clock()
		b.tm = tmState{mode: ModeCountdown, total: secs, startedAt: now, shown: secs}
		b.lastTimer = now
		b.periph.ShowDigits(formatMMSS(secs), true)
		b.ok("TM1637", "COUNTDOWN", strconv.Itoa(secs))
	default:
		b.emit("ERROR:Invalid command format")
	}
}

func (b *Board) handleUltra(cmd protocol.Command) {
	switch cmd.Action {
	case "START":
		b.ultra = ultraState{active: true}
		b.ok("ULTRA", "START", "")
	case "STOP":
		b.ultra = ultraState{}
		b.ok("ULTRA", "STOP", "")
	case "READ":
		b.ok("ULTRA", "READ", "")
		b.emit(fmt.Sprintf("DISTANCE:%.2f", b.periph.MeasureDistance()))
	default:
		b.emit("ERROR:Invalid command format")
	}
}

// reportStatus emits the bracketed multi-line snapshot, then an ack so the
// requesting side knows the block is complete.
func (b *Board) reportStatus() {
	b.emit("STATUS:START")
	ledStatus := "OFF"
	if b.led.blinking {
		ledStatus = "BLINK"
	} else if b.led.on {
		ledStatus = "ON"
	}
	b.emit("STATUS:LED:" + ledStatus)
	if b.buzzer.on {
		b.emit("STATUS:BUZZER:ON")
	} else {
		b.emit("STATUS:BUZZER:OFF")
	}
	if b.ultra.active {
		b.emit("STATUS:ULTRA:ACTIVE")
	} else {
		b.emit("STATUS:ULTRA:INACTIVE")
	}
	b.emit("STATUS:END")
	b.ok("STATUS", "REPORT", "")
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
