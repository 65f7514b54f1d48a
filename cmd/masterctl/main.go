package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"masterctl/internal/bridge"
	"masterctl/internal/config"
	"masterctl/internal/controller"
	"masterctl/internal/journal"
	"masterctl/internal/link"
	"masterctl/internal/logging"
	"masterctl/internal/metrics"
	"masterctl/internal/monitor"
	"masterctl/internal/protocol"
	"masterctl/internal/snapshot"
	"masterctl/internal/trigger"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel)

	log.Info().
		Str("port", cfg.Port).
		Int("baud", cfg.Baud).
		Msg("Starting master controller")

	conn, err := link.Open(cfg.Port, cfg.Baud)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open board link")
	}
	defer conn.Close()

	var jr *journal.Journal
	if cfg.JournalPath != "" {
		jr, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.JournalPath).Msg("Failed to open journal")
		}
		defer jr.Close()
	}

	stats := metrics.New(cfg.StatsdAddr, cfg.StatsdNamespace, cfg.StatsdTags)
	defer stats.Close()

	br, err := bridge.New(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect MQTT bridge")
	}
	defer br.Close()

	snap := snapshot.New()
	var ctl *controller.Controller
	engine := trigger.NewEngine(func(cmd protocol.Command) error {
		return ctl.DispatchTrigger(cmd)
	})
	engine.OnFire = func(t trigger.Trigger) {
		stats.Count("trigger.fired", 1, "kind:"+string(t.Kind))
	}

	mon := monitor.New(conn, snap, engine)
	mon.Journal = jr
	mon.Metrics = stats
	mon.Bridge = br

	ctl = controller.New(conn, mon, engine, snap)
	ctl.Journal = jr
	ctl.AckTimeout = cfg.AckTimeout()
	ctl.ReadTimeout = cfg.ReadTimeout()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		// Unblocks the monitor's pending read.
		conn.Close()
		return nil
	})

	if err := ctl.RequestStatus(); err != nil {
		log.Warn().Err(err).Msg("Board did not answer initial status request")
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Controller stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Controller stopped")
}
