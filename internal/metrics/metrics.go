// Package metrics emits DogStatsD gauges and counters for live board
// readings. A nil *Client is a no-op, so callers never guard on whether
// metrics are configured.
package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

type Client struct {
	statsd *statsd.Client
}

// New connects a DogStatsD client. An empty addr disables metrics and
// returns nil, which all methods tolerate.
func New(addr, namespace string, tags []string) *Client {
	if addr == "" {
		return nil
	}
	c, err := statsd.New(addr)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return nil
	}
	c.Namespace = namespace
	c.Tags = tags

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Msg("Metrics initialized")
	return &Client{statsd: c}
}

func (c *Client) Gauge(name string, value float64, tags ...string) {
	if c == nil {
		return
	}
	if err := c.statsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (c *Client) Count(name string, value int64, tags ...string) {
	if c == nil {
		return
	}
	if err := c.statsd.Count(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.statsd.Close()
}
