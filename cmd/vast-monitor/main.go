package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/begna112/vast-monitor/internal/config"
	"github.com/begna112/vast-monitor/internal/history"
	"github.com/begna112/vast-monitor/internal/monitor"
	"github.com/begna112/vast-monitor/internal/notify"
	"github.com/begna112/vast-monitor/internal/session"
	"github.com/begna112/vast-monitor/internal/vast"
	"github.com/begna112/vast-monitor/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	mockMode := flag.Bool("mock", false, "Use scripted mock machine data instead of the provider API")
	port := flag.Int("port", 0, "Override status server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	var client vast.Client
	if *mockMode {
		log.Println("Starting in mock mode")
		client = vast.NewMockClient(cfg.MachineIDs)
	} else {
		if cfg.APIKey == "" {
			log.Fatal("No API key configured; set api_key or VAST_API_KEY")
		}
		client = vast.NewAPIClient(cfg.APIKey)
	}

	targets := notify.BuildTargets(cfg.Apprise)
	log.Printf("Notification targets: %d", len(targets))
	dispatcher := notify.NewDispatcher(targets, notify.NewWebhookDeliverer())
	defer dispatcher.Close()

	store := session.NewStore(cfg.StatePath())
	mon := monitor.New(cfg, client, store, dispatcher)

	var hist *history.Store
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer hist.Close()
		mon.SetHistorySink(hist)
	}

	var broadcaster *ws.Broadcaster
	if cfg.Server.Enabled {
		broadcaster = ws.NewBroadcaster(mon, 250*time.Millisecond, 30*time.Second)
		mon.SetStatusSink(broadcaster)

		mux := http.NewServeMux()
		var histSource ws.HistorySource
		if hist != nil {
			histSource = hist
		}
		ws.NewServer(mon, broadcaster, histSource).SetupRoutes(mux)
		go func() {
			if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
				log.Fatalf("Status server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %s, shutting down...", sig)
		cancel()
	}()

	if cfg.Notify.Enabled && cfg.Notify.OnStart {
		dispatcher.Dispatch(systemEvent("Vast Monitor Started",
			append([]string{fmt.Sprintf("Tracking %d machine(s).", len(cfg.MachineIDs))},
				monitor.CollectHostStats().Lines()...)))
	}

	err = mon.Run(ctx)
	if err != nil {
		if errors.Is(err, session.ErrCorruptState) {
			log.Fatalf("State file %s is corrupt: %v\nDelete or repair it, then restart.", cfg.StatePath(), err)
		}
		log.Fatalf("Monitor failed: %v", err)
	}

	if cfg.Notify.Enabled && cfg.Notify.OnShutdown {
		dispatcher.Dispatch(systemEvent("Vast Monitor Stopped",
			[]string{"Monitoring has shut down cleanly."}))
	}
}

func systemEvent(title string, lines []string) session.Event {
	return session.Event{
		Kind: session.EventSystem,
		Time: time.Now().UTC(),
		System: &session.SystemInfo{
			Title: title,
			Lines: lines,
		},
	}
}
