package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/scanrelay/scanrelay/internal/app"
	"github.com/scanrelay/scanrelay/internal/client"
	"github.com/scanrelay/scanrelay/internal/config"
	"github.com/scanrelay/scanrelay/internal/dispatch"
	"github.com/scanrelay/scanrelay/internal/frames"
	"github.com/scanrelay/scanrelay/internal/permission"
)

func main() {
	configPath := flag.String("config", "scanner.yaml", "Path to config file")
	wsURL := flag.String("url", "", "Override WebSocket URL of the listener")
	token := flag.String("token", "", "Override auth token")
	mockMode := flag.Bool("mock", false, "Use synthetic frames and grant all permissions")
	ackMode := flag.String("ack", "", "Override acknowledgment mode (optimistic|confirmed)")
	flag.Parse()

	cfg, err := config.LoadScanner(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *wsURL != "" {
		cfg.Server.URL = *wsURL
	}
	if *token != "" {
		cfg.Server.Token = *token
	}
	if *ackMode != "" {
		cfg.Dispatch.AckMode = *ackMode
	}
	if *mockMode {
		cfg.Frames.Source = config.SourceMock
		cfg.Permissions.Mode = config.PermissionsStatic
		cfg.Permissions.Camera = true
		cfg.Permissions.Media = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if cfg.LogFile != "" {
		f, err := tea.LogToFile(cfg.LogFile, "scanner")
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
	}

	symbologies, _ := cfg.SymbologyList()
	mode, _ := dispatch.ParseAckMode(cfg.Dispatch.AckMode)

	session := client.NewSession(cfg.Server.URL, cfg.Server.Token)
	httpClient := client.NewHTTPClient(client.DeriveHTTPBase(cfg.Server.URL), cfg.Server.Token)
	session.On("connect", func() { log.Printf("listener reachable at %s", session.URL()) })
	session.On("disconnect", func() { log.Printf("listener connection lost") })

	var source frames.Source
	switch cfg.Frames.Source {
	case config.SourceMock:
		source = frames.NewMockSource(cfg.Frames.MockPayloads, cfg.Frames.Interval)
	default:
		source = &frames.DirSource{
			Dir:      cfg.Frames.Dir,
			Interval: cfg.Frames.Interval,
			Remove:   cfg.Frames.RemoveProcessed,
		}
	}

	var gate permission.Gate
	switch cfg.Permissions.Mode {
	case config.PermissionsStatic:
		gate = permission.StaticGate{Camera: cfg.Permissions.Camera, Media: cfg.Permissions.Media}
	default:
		gate = permission.DeviceGate{CameraPath: cfg.Permissions.CameraPath, MediaDir: cfg.Permissions.MediaDir}
	}

	m := app.New(app.Deps{
		Transport:   session,
		History:     httpClient,
		Permissions: gate,
		Source:      source,
		Symbologies: symbologies,
		Dispatcher:  dispatch.New(session, mode, cfg.Dispatch.AckTimeout),
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err = p.Run()
	session.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
