package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"BusScope/internal/desktop"
	"BusScope/internal/di"
	"BusScope/internal/services/render"
	"BusScope/internal/usecase"
	"BusScope/pkg/config"
	applogger "BusScope/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path, empty for built-in defaults")
	preload := flag.Bool("preload", true, "register every catalog signal on start")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	// the desktop viewer always ingests in process
	cfg.Ingest.Relay = usecase.RelayLocal
	cfg.Logging.Collector.Enabled = false

	if err := run(cfg, *preload); err != nil {
		log.Printf("desktop error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, preload bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	m := di.ProvideMetrics(di.ProvideRegistry())
	frames, closeCache, err := di.ProvideFrameCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	manager := di.ProvideSessionManager(cfg, m, l, di.ProvideCatalog(cfg, frames, l), frames)
	defer manager.Close()
	pipe := di.ProvideRealtimePipeline(cfg, manager, m, l)
	relay := di.ProvideTraceRelay(cfg, nil, pipe, m)

	stream, err := di.ProvideTraceStream(cfg, l)
	if err != nil {
		return err
	}
	pipe.Start(ctx)
	defer pipe.Stop()
	if collector := di.ProvideTraceCollector(stream, relay, m, pipe, l); collector != nil {
		if err := collector.Start(ctx); err != nil {
			l.Warn("trace source unavailable, showing an idle view", applogger.Error(err))
		}
		defer func() { _ = collector.Shutdown(context.Background()) }()
	}

	vp := cfg.Engine.Viewport
	s, err := manager.Create(ctx, usecase.CreateOptions{Viewport: &vp, Mode: string(render.ModeCombined), Preload: preload})
	if err != nil {
		return err
	}
	s.StartRendering()

	l.Info("desktop viewer started", applogger.String("session", s.ID()), applogger.String("backend", string(cfg.Backend())))
	return desktop.Run(desktop.NewViewer(ctx, s, l), "BusScope", int(vp.Width), int(vp.Height))
}
