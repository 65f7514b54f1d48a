package board

import "sync"

// Peripherals is the board's hardware surface. The scheduler and router only
// ever talk to displays, actuators and the sensor through this interface;
// rendering details (segment encoding, I2C writes, pulse timing) live behind
// it.
type Peripherals interface {
	SetLED(on bool)
	SetBuzzer(on bool)

	WriteLCD(line int, text string)
	ClearLCD()
	SetBacklight(on bool)

	ShowDigits(text string, colon bool)
	ClearDigits()
	SetBrightness(level int)

	// MeasureDistance returns centimeters, or -1 when no echo returned
	// within the sensor's bounded wait.
	MeasureDistance() float64
}

// SimPeripherals is an in-memory peripheral set used by the board simulator
// and by tests. Distance is settable from outside the board loop.
type SimPeripherals struct {
	mu sync.Mutex

	LED       bool
	Buzzer    bool
	Backlight bool

	LCDLines [2]string

	Digits     string
	Colon      bool
	Brightness int

	distance float64
}

func NewSimPeripherals() *SimPeripherals {
	return &SimPeripherals{Backlight: true, Brightness: 15, distance: -1}
}

func (p *SimPeripherals) SetLED(on bool)    { p.mu.Lock(); p.LED = on; p.mu.Unlock() }
func (p *SimPeripherals) SetBuzzer(on bool) { p.mu.Lock(); p.Buzzer = on; p.mu.Unlock() }

func (p *SimPeripherals) WriteLCD(line int, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line == 1 || line == 2 {
		p.LCDLines[line-1] = text
	}
}

func (p *SimPeripherals) ClearLCD() {
	p.mu.Lock()
	p.LCDLines = [2]string{}
	p.mu.Unlock()
}

func (p *SimPeripherals) SetBacklight(on bool) { p.mu.Lock(); p.Backlight = on; p.mu.Unlock() }

func (p *SimPeripherals) ShowDigits(text string, colon bool) {
	p.mu.Lock()
	p.Digits, p.Colon = text, colon
	p.mu.Unlock()
}

func (p *SimPeripherals) ClearDigits() { p.mu.Lock(); p.Digits, p.Colon = "", false; p.mu.Unlock() }

func (p *SimPeripherals) SetBrightness(level int) { p.mu.Lock(); p.Brightness = level; p.mu.Unlock() }

func (p *SimPeripherals) MeasureDistance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.distance
}

// SetDistance primes the simulated sensor; negative means no echo.
func (p *SimPeripherals) SetDistance(cm float64) {
	p.mu.Lock()
	p.distance = cm
	p.mu.Unlock()
}

// Snapshot returns a copy of the visible peripheral state.
func (p *SimPeripherals) Snapshot() SimPeripherals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return SimPeripherals{
		LED:        p.LED,
		Buzzer:     p.Buzzer,
		Backlight:  p.Backlight,
		LCDLines:   p.LCDLines,
		Digits:     p.Digits,
		Colon:      p.Colon,
		Brightness: p.Brightness,
		distance:   p.distance,
	}
}
