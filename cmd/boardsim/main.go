// boardsim serves the device-side loop over TCP so the controller can be
// exercised without hardware: point masterctl at "tcp:host:port". Each
// connection gets its own simulated board with fresh peripheral state.
package main

import (
	"context"
	"flag"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"masterctl/internal/board"
	"masterctl/internal/link"
	"masterctl/internal/logging"
)

func main() {
	var (
		listen   = flag.String("listen", ":7777", "TCP address to serve simulated boards on")
		distance = flag.Float64("distance", -1, "Fixed distance reading in cm (-1 simulates no echo)")
		period   = flag.Duration("status-period", time.Second, "Cadence of countdown status reports")
		debug    = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logging.Init(level)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatal().Err(err).Str("listen", *listen).Msg("Failed to listen")
	}
	log.Info().Str("listen", *listen).Msg("Board simulator listening")

	for {
		nc, err := ln.Accept()
		if err != nil {
			log.Fatal().Err(err).Msg("Accept failed")
		}
		go serve(nc, *distance, *period)
	}
}

func serve(nc net.Conn, distance float64, statusPeriod time.Duration) {
	remote := nc.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("Controller connected")

	conn := link.New(nc)
	defer conn.Close()

	periph := board.NewSimPeripherals()
	periph.SetDistance(distance)

	b := board.New(periph, func(line string) {
		if err := conn.WriteLine(line); err != nil {
			log.Debug().Err(err).Msg("Dropped outbound line on closed connection")
		}
	})
	b.StatusPeriod = statusPeriod

	if err := b.Run(context.Background(), conn); err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("Board loop ended with error")
	}
	log.Info().Str("remote", remote).Msg("Controller disconnected")
}
