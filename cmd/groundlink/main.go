// Command groundlink runs the ground station bridge: it keeps a MAVLink
// link per configured vehicle, caches and broadcasts telemetry, runs
// mission transfers, and serves the dashboard websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mithilesh5957/nidar/internal/config"
	"github.com/Mithilesh5957/nidar/internal/dispatcher"
	"github.com/Mithilesh5957/nidar/internal/influx"
	"github.com/Mithilesh5957/nidar/internal/link"
	"github.com/Mithilesh5957/nidar/internal/logging"
	"github.com/Mithilesh5957/nidar/internal/mission"
	"github.com/Mithilesh5957/nidar/internal/model"
	"github.com/Mithilesh5957/nidar/internal/mqttpub"
	"github.com/Mithilesh5957/nidar/internal/store"
	"github.com/Mithilesh5957/nidar/internal/telemetry"
	"github.com/Mithilesh5957/nidar/internal/wsserver"
)

func main() {
	configDir := flag.String("config", ".", "directory containing groundlink.cfg.json")
	flag.Parse()

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "groundlink: %v\n", err)
		os.Exit(1)
	}

	var links atomic.Pointer[link.Manager]

	logMgr := logging.NewManager()
	err := logMgr.Setup(
		config.GetString("logLevel"),
		config.GetString("logsDir"),
		"groundlink",
		func() []slog.Attr {
			if m := links.Load(); m != nil {
				return []slog.Attr{slog.Int("connected", m.ConnectedCount())}
			}
			return nil
		},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "groundlink: %v\n", err)
		os.Exit(1)
	}
	defer logMgr.Close()
	logger := logMgr.Logger()

	vehicles := config.GetVehicles()
	if len(vehicles) == 0 {
		logger.Error("no vehicles configured")
		os.Exit(1)
	}

	tc := config.GetTelemetryConfig()
	hub := telemetry.NewHub(logger,
		telemetry.WithCapacity(tc.Capacity),
		telemetry.WithSubscriberBuffer(tc.SubscriberBuffer),
	)
	defer hub.Close()

	zlog := zerolog.New(os.Stdout).With().Timestamp().Str("component", "store").Logger()
	st := store.NewManager(zlog)
	if err := st.Connect(); err != nil {
		logger.Error("store connect failed", "error", err)
		os.Exit(1)
	}
	if err := st.Migrate(); err != nil {
		logger.Error("store migrate failed", "error", err)
		os.Exit(1)
	}
	if err := st.SeedVehicles(vehicles); err != nil {
		logger.Error("seeding vehicles failed", "error", err)
		os.Exit(1)
	}

	disp, err := dispatcher.New(logging.NewSlogAdapter(logger))
	if err != nil {
		logger.Error("dispatcher init failed", "error", err)
		os.Exit(1)
	}

	// The cache sink feeds the hub's bounded history from telemetry events.
	disp.Register("cache", model.TopicTelemetry, func(e model.Event) error {
		if sample, ok := e.Payload.(model.TelemetrySample); ok {
			hub.Record(e.VehicleID, sample)
		}
		return nil
	})

	// Persistence must never stall the link read loops: a hung database
	// fills the queue and further events are dropped and counted, same as
	// the Influx and MQTT sinks.
	disp.Register("store", dispatcher.TopicAll, st.HandleEvent, dispatcher.Buffered(256))

	if config.GetBool("influx.enabled") {
		rec := influx.NewRecorder(logger)
		defer rec.Close()
		disp.Register("influx", dispatcher.TopicAll, rec.HandleEvent, dispatcher.Buffered(512))
	}

	if config.GetBool("mqtt.enabled") {
		pub, err := mqttpub.NewPublisher(logger)
		if err != nil {
			logger.Error("mqtt publisher failed, continuing without it", "error", err)
		} else {
			defer pub.Close()
			disp.Register("mqtt", dispatcher.TopicAll, pub.HandleEvent, dispatcher.Buffered(256))
		}
	}

	publish := func(e model.Event) {
		hub.Publish(e)
		if err := disp.Dispatch(e); err != nil {
			logger.Warn("event dispatch failed", "topic", e.Topic, "error", err)
		}
	}

	linkMgr, err := link.NewManager(vehicles, config.GetLinkConfig(), logger, publish)
	if err != nil {
		logger.Error("link manager init failed", "error", err)
		os.Exit(1)
	}
	links.Store(linkMgr)
	if err := linkMgr.Start(); err != nil {
		logger.Error("link manager start failed", "error", err)
		os.Exit(1)
	}
	defer linkMgr.Stop()

	engine := mission.NewEngine(linkMgr, config.GetMissionConfig(), logger)
	svc := mission.NewService(engine, st, publish, logger)

	ws := wsserver.NewServer(config.GetString("ws.listenAddr"), hub, svc, logger)
	ws.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Shutdown(ctx); err != nil {
		logger.Warn("websocket shutdown", "error", err)
	}
}
