package controller

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Multi-device sequences built from the primitive operations. Each sequence
// is a series of synchronous exchanges; the first failed exchange aborts the
// rest.

// WelcomeMessage clears the LCD, greets the named visitor on both lines,
// and beeps once.
func (c *Controller) WelcomeMessage(name string) error {
	if err := c.LCDClear(); err != nil {
		return err
	}
	if err := c.LCDWriteLine(1, "Welcome!"); err != nil {
		return err
	}
	if err := c.LCDWriteLine(2, name); err != nil {
		return err
	}
	return c.BuzzerBeep(200)
}

// Celebration runs the all-device party sequence: LCD message, fast LED
// blink, three short beeps, all segments lit. Takes about a second.
func (c *Controller) Celebration() error {
	if err := c.LCDShowMessage("Celebration!", "Hooray!"); err != nil {
		return err
	}
	if err := c.LedBlink(200); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := c.BuzzerBeep(150); err != nil {
			return err
		}
		c.Sleep(300 * time.Millisecond)
	}
	return c.DisplayNumber(8888)
}

// Proximity levels reported by ProximityAlert.
const (
	ProximityCritical = "critical"
	ProximityWarning  = "warning"
	ProximityClear    = "clear"
)

// ProximityAlert takes one distance reading and drives the alert devices
// from it: under 10 cm sounds the alarm, under 30 cm warns, anything
// farther clears. Returns the reading and the level applied.
func (c *Controller) ProximityAlert() (float64, string, error) {
	cm, err := c.UltrasonicRead()
	if err != nil {
		return -1, "", err
	}

	switch {
	case cm < 10:
		log.Warn().Float64("cm", cm).Msg("Proximity critical")
		if err := c.BuzzerOn(); err != nil {
			return cm, ProximityCritical, err
		}
		if err := c.LedBlink(100); err != nil {
			return cm, ProximityCritical, err
		}
		return cm, ProximityCritical, c.LCDShowMessage("WARNING!", "Too Close!")

	case cm < 30:
		if err := c.BuzzerOff(); err != nil {
			return cm, ProximityWarning, err
		}
		if err := c.LedOn(); err != nil {
			return cm, ProximityWarning, err
		}
		return cm, ProximityWarning, c.LCDShowMessage("Caution", fmt.Sprintf("%.1f cm", cm))

	default:
		if err := c.LedOff(); err != nil {
			return cm, ProximityClear, err
		}
		if err := c.BuzzerOff(); err != nil {
			return cm, ProximityClear, err
		}
		return cm, ProximityClear, c.LCDShowMessage("Clear", fmt.Sprintf("%.1f cm", cm))
	}
}

// DisplayInfo shows a labeled value on the LCD and, when number is non-nil,
// mirrors it on the 7-segment display.
func (c *Controller) DisplayInfo(title, value string, number *int) error {
	if err := c.LCDShowMessage(title, value); err != nil {
		return err
	}
	if number == nil {
		return nil
	}
	return c.DisplayNumber(*number)
}
