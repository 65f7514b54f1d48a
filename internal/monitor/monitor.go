// Package monitor runs the host-side read loop for the lifetime of the
// connection. It owns all reads: every inbound line is classified, folded
// into the status snapshot, journaled and bridged, then either handed to the
// command path waiting for its acknowledgment or fed to the trigger engine.
package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"masterctl/internal/bridge"
	"masterctl/internal/journal"
	"masterctl/internal/link"
	"masterctl/internal/metrics"
	"masterctl/internal/protocol"
	"masterctl/internal/snapshot"
	"masterctl/internal/trigger"
)

type Monitor struct {
	conn   *link.Conn
	snap   *snapshot.Snapshot
	engine *trigger.Engine

	// Optional observers; nil values are no-ops. Set before Run.
	Journal *journal.Journal
	Metrics *metrics.Client
	Bridge  *bridge.Bridge

	mu         sync.Mutex
	ackWaiter  chan protocol.Event
	distWaiter chan protocol.Event

	evalCh chan protocol.Event
}

func New(conn *link.Conn, snap *snapshot.Snapshot, engine *trigger.Engine) *Monitor {
	return &Monitor{
		conn:   conn,
		snap:   snap,
		engine: engine,
		evalCh: make(chan protocol.Event, 16),
	}
}

// Run consumes inbound lines until the context is cancelled or the link
// closes. It never terminates on a malformed line.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().Msg("Status monitor started")

	// Trigger evaluation runs off the read loop: a fired action's command
	// waits for its acknowledgment, and the read loop must stay free to
	// route that acknowledgment.
	go func() {
		for {
			select {
			case ev := <-m.evalCh:
				m.engine.Evaluate(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	lines := make(chan string, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := m.conn.ReadLine()
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

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, link.ErrClosed) {
				log.Info().Msg("Link closed, status monitor stopping")
				return nil
			}
			return err
		case line := <-lines:
			m.handleLine(line)
		}
	}
}

func (m *Monitor) handleLine(line string) {
	ev := protocol.ParseEvent(line)

	if err := m.Journal.RecordEvent(ev.Kind.String(), line); err != nil {
		log.Warn().Err(err).Msg("Failed to journal event")
	}

	switch ev.Kind {
	case protocol.EventAck, protocol.EventError:
		if m.deliver(&m.ackWaiter, ev) {
			return
		}
		if ev.Kind == protocol.EventError {
			log.Warn().Str("message", ev.Message).Msg("Board reported error")
		} else {
			log.Debug().Str("line", line).Msg("Unsolicited acknowledgment")
		}

	case protocol.EventTimerRemaining:
		m.snap.SetTimer(ev.Seconds, true)
		m.Metrics.Gauge("timer.remaining", float64(ev.Seconds))
		m.Bridge.Publish(ev)
		m.evaluate(ev)

	case protocol.EventCountdownFinished:
		m.snap.SetTimer(0, false)
		m.Metrics.Gauge("timer.remaining", 0)
		m.Bridge.Publish(ev)
		m.evaluate(ev)

	case protocol.EventClockTick:
		m.snap.SetClock(ev.Time)
		m.Bridge.Publish(ev)
		m.evaluate(ev)

	case protocol.EventDistance:
		m.snap.SetDistance(ev.CM)
		m.Metrics.Gauge("distance.cm", ev.CM)
		m.Bridge.Publish(ev)
		// A pending single-shot read claims the line first; it still
		// counted as status above, so triggers see it either way.
		m.deliver(&m.distWaiter, ev)
		m.evaluate(ev)

	case protocol.EventStatusStart, protocol.EventStatusLine, protocol.EventStatusEnd:
		log.Info().Str("line", line).Msg("Device status")

	default:
		log.Debug().Str("line", line).Msg("Dropping unrecognized line")
	}
}

// evaluate queues the event for the trigger worker. The queue is bounded;
// if the worker is stuck mid-exchange long enough to fill it, newer events
// are dropped rather than wedging the read loop.
func (m *Monitor) evaluate(ev protocol.Event) {
	select {
	case m.evalCh <- ev:
	default:
		log.Warn().Str("line", ev.Raw).Msg("Trigger queue full, dropping event")
	}
}

// ArmAck reserves the one-shot wait slot for the next acknowledgment line.
// The command path arms it before writing so the reply cannot race past it
// into the status stream.
func (m *Monitor) ArmAck() <-chan protocol.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan protocol.Event, 1)
	m.ackWaiter = ch
	return ch
}

// CancelAck releases the slot after a timeout, so a late reply is logged as
// noise instead of answering the next command.
func (m *Monitor) CancelAck(ch <-chan protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ackWaiter == ch {
		m.ackWaiter = nil
	}
}

// ArmDistance reserves the one-shot slot for the next distance reading
// (ULTRA:READ replies).
func (m *Monitor) ArmDistance() <-chan protocol.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan protocol.Event, 1)
	m.distWaiter = ch
	return ch
}

func (m *Monitor) CancelDistance(ch <-chan protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.distWaiter == ch {
		m.distWaiter = nil
	}
}

func (m *Monitor) deliver(slot *chan protocol.Event, ev protocol.Event) bool {
	m.mu.Lock()
	ch := *slot
	*slot = nil
	m.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- ev
	return true
}
