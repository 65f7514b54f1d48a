// Package bridge fans status events out to an MQTT broker so other systems
// can watch the board without holding the serial port. Publication is
// best-effort: a missing or unreachable broker never disturbs the monitor.
package bridge

import (
	"fmt"
	"strconv"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"masterctl/internal/protocol"
)

type Bridge struct {
	client paho.Client
	prefix string
}

// New connects to the broker. An empty brokerURL disables the bridge and
// returns nil; a nil *Bridge publishes nothing.
func New(brokerURL, clientID, prefix string) (*Bridge, error) {
	if brokerURL == "" {
		return nil, nil
	}
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true)
	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", brokerURL, token.Error())
	}
	log.Info().Str("broker", brokerURL).Str("prefix", prefix).Msg("MQTT bridge connected")
	return &Bridge{client: client, prefix: prefix}, nil
}

// Publish maps the event onto its topic and publishes the latest value
// retained at QoS 0. Events with no topic (acks, status brackets, unknown
// lines) are skipped.
func (b *Bridge) Publish(ev protocol.Event) {
	if b == nil {
		return
	}
	topic, payload, ok := Topic(b.prefix, ev)
	if !ok {
		return
	}
	b.client.Publish(topic, 0, true, payload)
}

// Topic resolves the topic and payload for one event. Split out so the
// mapping is testable without a broker.
func Topic(prefix string, ev protocol.Event) (topic, payload string, ok bool) {
	switch ev.Kind {
	case protocol.EventDistance:
		return prefix + "/distance", strconv.FormatFloat(ev.CM, 'f', 2, 64), true
	case protocol.EventTimerRemaining:
		return prefix + "/timer/remaining", strconv.Itoa(ev.Seconds), true
	case protocol.EventCountdownFinished:
		return prefix + "/timer/finished", "1", true
	case protocol.EventClockTick:
		return prefix + "/clock", ev.Time, true
	case protocol.EventError:
		return prefix + "/error", ev.Message, true
	}
	return "", "", false
}

func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.client.Disconnect(250)
}
