package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"latencyctl/internal/backend"
	"latencyctl/internal/config"
	"latencyctl/internal/eventbus"
	"latencyctl/internal/server"
	"latencyctl/internal/session"
	"latencyctl/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", ":8080", "address for the control API")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("Backend %s, events %s", cfg.Backend.BaseURL, cfg.Backend.EventsURL)

	exports, err := storage.NewExportStorage(cfg.ExportDirectory)
	if err != nil {
		log.Fatalf("initialise export storage: %v", err)
	}

	timeout := time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	client := backend.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, timeout)
	stream := backend.NewEventStream(cfg.Backend.EventsURL, cfg.Backend.APIKey, eventbus.New())

	store := session.NewStore(cfg.LogCapacity, nil)
	dispatcher := session.NewDispatcher(store, client, exports)
	sub := session.NewSubscriber(store, stream).Attach()
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream.OnConnect(func() {
		refreshCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := dispatcher.Refresh(refreshCtx); err != nil {
			log.Printf("resync after connect: %v", err)
		}
	})

	if cfg.LoadSettings {
		loadCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := dispatcher.LoadSettings(loadCtx); err != nil {
			log.Printf("load backend settings: %v", err)
		}
		cancel()
	}

	go func() {
		if err := stream.Run(ctx); err != nil {
			log.Printf("event stream stopped: %v", err)
		}
	}()

	pushInterval := time.Duration(cfg.PushIntervalMs) * time.Millisecond
	srv := server.New(*addr, store, dispatcher, pushInterval, cfg.LogCapacity, timeout)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("latencyctl listening on %s", *addr)
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
