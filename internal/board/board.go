// Package board implements the device side of the system: a cooperative,
// non-blocking scheduler over the independently timed subsystems (LED,
// buzzer, ultrasonic sensor, LCD, 7-segment display), the command router for
// inbound DEVICE:ACTION:VALUE lines, and the status emitter. In production
// it runs against real peripherals behind the Peripherals interface; the
// simulator runs it against SimPeripherals.
package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"masterctl/internal/link"
)

// DisplayMode is the single active mode of one physical display. Exactly one
// mode is active per display; activating a mode replaces whatever was there.
type DisplayMode int

const (
	ModeOff DisplayMode = iota
	ModeClock
	ModeStopwatch
	ModeCountdown
	ModeStatic
)

func (m DisplayMode) String() string {
	switch m {
	case ModeClock:
		return "clock"
	case ModeStopwatch:
		return "stopwatch"
	case ModeCountdown:
		return "countdown"
	case ModeStatic:
		return "static"
	}
	return "off"
}

const (
	defaultBlinkInterval = 500 * time.Millisecond
	defaultBeepDuration  = 100 * time.Millisecond
	defaultCountdownSecs = 60
	maxCountdownSecs     = 5940 // 99 minutes
	ultraInterval        = 500 * time.Millisecond
	passInterval         = 10 * time.Millisecond
)

type ledState struct {
	on       bool
	blinking bool
	interval time.Duration
	lastTick time.Time
}

type buzzerState struct {
	on      bool
	beeping bool
	offAt   time.Time
}

type ultraState struct {
	active   bool
	lastTick time.Time
}

type lcdState struct {
	mode     DisplayMode
	h, m, s  int
	date     string
	day      string
	elapsed  int // stopwatch seconds
	lastTick time.Time
}

type tmState struct {
	mode      DisplayMode
	h, m, s   int
	colon     bool
	elapsed   int // stopwatch seconds
	total     int // countdown seconds at activation
	startedAt time.Time
	shown     int // last rendered countdown remaining
	lastTick  time.Time
}

// Board holds all subsystem state and advances it one cooperative pass at a
// time. It is single-threaded: Run owns all calls into Tick and HandleLine.
type Board struct {
	periph Peripherals
	send   func(string)

	// Clock and Sleep are swappable for tests; Sleep is used only by the
	// countdown finish beep, the one bounded blocking exception.
	Clock func() time.Time
	Sleep func(time.Duration)

	// StatusPeriod is the cadence of periodic TIMER:REMAINING lines.
	StatusPeriod time.Duration

	led       ledState
	buzzer    buzzerState
	ultra     ultraState
	lcd       lcdState
	tm        tmState
	lastTimer time.Time
}

// New creates a board over the given peripherals. Emitted status and
// acknowledgment lines go through send.
func New(periph Peripherals, send func(string)) *Board {
	return &Board{
		periph:       periph,
		send:         send,
		Clock:        time.Now,
		Sleep:        time.Sleep,
		StatusPeriod: time.Second,
	}
}

// Run drives the cooperative loop: inbound lines are drained between passes,
// and each pass advances every active subsystem at most one unit of work.
// Returns when the context is cancelled or the link closes.
func (b *Board) Run(ctx context.Context, conn *link.Conn) error {
	lines := make(chan string, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := conn.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(passInterval)
	defer ticker.Stop()

	log.Info().Msg("Board loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, link.ErrClosed) {
				log.Info().Msg("Link closed, stopping board loop")
				return nil
			}
			return fmt.Errorf("board read failed: %w", err)
		case line := <-lines:
			b.HandleLine(line)
		case <-ticker.C:
			b.Tick(b.Clock())
		}
	}
}

// Tick performs one scheduler pass. Every active subsystem whose interval
// has elapsed does one unit of work; none of them may block the others.
func (b *Board) Tick(now time.Time) {
	b.tickLED(now)
	b.tickBuzzer(now)
	b.tickUltra(now)
	b.tickLCD(now)
	b.tickTM(now)
}

func (b *Board) emit(line string) {
	if b.send != nil {
		b.send(line)
	}
}

func (b *Board) tickLED(now time.Time) {
	if !b.led.blinking {
		return
	}
	if now.Sub(b.led.lastTick) < b.led.interval {
		return
	}
	b.led.on = !b.led.on
	b.periph.SetLED(b.led.on)
	b.led.lastTick = now
}

func (b *Board) tickBuzzer(now time.Time) {
	if b.buzzer.beeping && !now.Before(b.buzzer.offAt) {
		b.buzzer.on = false
		b.buzzer.beeping = false
		b.periph.SetBuzzer(false)
	}
}

func (b *Board) tickUltra(now time.Time) {
	if !b.ultra.active {
		return
	}
	if now.Sub(b.ultra.lastTick) < ultraInterval {
		return
	}
	b.ultra.lastTick = now
	b.emit(fmt.Sprintf("DISTANCE:%.2f", b.periph.MeasureDistance()))
}

// wholeSeconds advances lastTick by the whole seconds elapsed since it and
// returns how many passed, so slow passes catch up instead of drifting.
func wholeSeconds(lastTick *time.Time, now time.Time) int {
	n := int(now.Sub(*lastTick) / time.Second)
	if n > 0 {
		*lastTick = lastTick.Add(time.Duration(n) * time.Second)
	}
	return n
}

func (b *Board) tickLCD(now time.Time) {
	switch b.lcd.mode {
	case ModeClock:
		n := wholeSeconds(&b.lcd.lastTick, now)
		if n == 0 {
			return
		}
		b.lcd.h, b.lcd.m, b.lcd.s = advanceHMS(b.lcd.h, b.lcd.m, b.lcd.s, n)
		b.renderLCDClock()
		b.emit("CLOCK:LCD:" + formatHMS(b.lcd.h, b.lcd.m, b.lcd.s))
	case ModeStopwatch:
		n := wholeSeconds(&b.lcd.lastTick, now)
		if n == 0 {
			return
		}
		b.lcd.elapsed += n
		b.renderLCDStopwatch()
	}
}

func (b *Board) tickTM(now time.Time) {
	switch b.tm.mode {
	case ModeClock:
		n := wholeSeconds(&b.tm.lastTick, now)
		if n == 0 {
			return
		}
		b.tm.h, b.tm.m, b.tm.s = advanceHMS(b.tm.h, b.tm.m, b.tm.s, n)
		b.tm.colon = !b.tm.colon
		b.periph.ShowDigits(fmt.Sprintf("%02d%02d", b.tm.h, b.tm.m), b.tm.colon)
	case ModeStopwatch:
		n := wholeSeconds(&b.tm.lastTick, now)
		if n == 0 {
			return
		}
		b.tm.elapsed += n
		b.periph.ShowDigits(formatMMSS(b.tm.elapsed), true)
	case ModeCountdown:
		// Remaining is derived from the start time, not decremented per
		// pass, so drift cannot accumulate across passes.
		remaining := b.tm.total - int(now.Sub(b.tm.startedAt)/time.Second)
		if remaining <= 0 {
			b.finishCountdown()
			return
		}
		if remaining != b.tm.shown {
			b.tm.shown = remaining
			b.periph.ShowDigits(formatMMSS(remaining), true)
		}
		if now.Sub(b.lastTimer) >= b.StatusPeriod {
			b.lastTimer = now
			b.emit(fmt.Sprintf("TIMER:REMAINING:%d", remaining))
		}
	}
}

// finishCountdown renders the terminal all-zero state, plays the short beep
// pattern (the one bounded blocking exception on the board), and reports
// completion exactly once.
func (b *Board) finishCountdown() {
	b.tm.mode = ModeOff
	b.tm.shown = 0
	b.periph.ShowDigits("0000", true)
	b.emit("TIMER:REMAINING:0")
	for i := 0; i < 3; i++ {
		b.periph.SetBuzzer(true)
		b.Sleep(150 * time.Millisecond)
		b.periph.SetBuzzer(false)
		b.Sleep(100 * time.Millisecond)
	}
	b.emit("COUNTDOWN:FINISHED")
	log.Info().Msg("Countdown finished")
}

func (b *Board) renderLCDClock() {
	b.periph.WriteLCD(1, formatHMS(b.lcd.h, b.lcd.m, b.lcd.s))
	b.periph.WriteLCD(2, trimLCD(b.lcd.date+" "+b.lcd.day))
}

func (b *Board) renderLCDStopwatch() {
	b.periph.WriteLCD(1, "Stopwatch:")
	hh := b.lcd.elapsed / 3600
	mm := (b.lcd.elapsed % 3600) / 60
	ss := b.lcd.elapsed % 60
	b.periph.WriteLCD(2, fmt.Sprintf("%02d:%02d:%02d", hh, mm, ss))
}

func advanceHMS(h, m, s, n int) (int, int, int) {
	total := (h*3600 + m*60 + s + n) % 86400
	return total / 3600, (total % 3600) / 60, total % 60
}

func formatHMS(h, m, s int) string {
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatMMSS(total int) string {
	if total > maxCountdownSecs {
		total = maxCountdownSecs
	}
	return fmt.Sprintf("%02d%02d", total/60, total%60)
}

func trimLCD(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
