package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scanrelay/scanrelay/internal/config"
	"github.com/scanrelay/scanrelay/internal/listener"
)

func main() {
	configPath := flag.String("config", "listener.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	token := flag.String("token", "", "Override auth token")
	flag.Parse()

	cfg, err := config.LoadListener(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *token != "" {
		cfg.Server.Token = *token
	}

	store := listener.NewStore(cfg.Listener.HistorySize)
	broadcaster := listener.NewBroadcaster(store, cfg.Listener.BroadcastBuffer)
	server := listener.NewServer(cfg, store, broadcaster)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := listener.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Shut down")
}
