package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	// Port is the board link: a serial device path, or "tcp:host:port" for
	// the simulator.
	Port string `json:"port"`
	Baud int    `json:"baud"`

	// AckTimeoutMS bounds each command exchange; ReadTimeoutMS bounds a
	// single-shot distance read.
	AckTimeoutMS  int `json:"ack_timeout_ms"`
	ReadTimeoutMS int `json:"read_timeout_ms"`

	// JournalPath is the sqlite event journal; empty disables journaling.
	JournalPath string `json:"journal_path"`

	// StatsdAddr enables metrics when set, e.g. "127.0.0.1:8125".
	StatsdAddr      string   `json:"statsd_addr"`
	StatsdNamespace string   `json:"statsd_namespace"`
	StatsdTags      []string `json:"statsd_tags"`

	// MQTTBroker enables the status bridge when set, e.g.
	// "tcp://127.0.0.1:1883".
	MQTTBroker   string `json:"mqtt_broker"`
	MQTTClientID string `json:"mqtt_client_id"`
	MQTTPrefix   string `json:"mqtt_prefix"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.AckTimeoutMS == 0 {
		cfg.AckTimeoutMS = 2000
	}
	if cfg.ReadTimeoutMS == 0 {
		cfg.ReadTimeoutMS = 1000
	}
	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = "masterctl"
	}
	if cfg.MQTTPrefix == "" {
		cfg.MQTTPrefix = "masterctl/board"
	}
	if cfg.StatsdNamespace == "" {
		cfg.StatsdNamespace = "masterctl."
	}
}

func (cfg *Config) validate() {
	var problems []string

	if cfg.Port == "" {
		problems = append(problems, "port is required")
	}
	if cfg.Baud < 0 {
		problems = append(problems, fmt.Sprintf("baud must be positive, got %d", cfg.Baud))
	}
	if cfg.AckTimeoutMS < 0 {
		problems = append(problems, fmt.Sprintf("ack_timeout_ms must be positive, got %d", cfg.AckTimeoutMS))
	}
	if cfg.ReadTimeoutMS < 0 {
		problems = append(problems, fmt.Sprintf("read_timeout_ms must be positive, got %d", cfg.ReadTimeoutMS))
	}
	if cfg.MQTTBroker != "" && !strings.Contains(cfg.MQTTBroker, "://") {
		problems = append(problems, fmt.Sprintf("mqtt_broker must be a URL like tcp://host:1883, got %q", cfg.MQTTBroker))
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

func (cfg Config) AckTimeout() time.Duration {
	return time.Duration(cfg.AckTimeoutMS) * time.Millisecond
}

func (cfg Config) ReadTimeout() time.Duration {
	return time.Duration(cfg.ReadTimeoutMS) * time.Millisecond
}
