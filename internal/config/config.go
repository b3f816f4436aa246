// Package config loads the YAML configuration of the scanner and the
// listener. Defaults are filled in before the file is applied.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/scanrelay/scanrelay/internal/dispatch"
	"github.com/scanrelay/scanrelay/internal/scan"
	"gopkg.in/yaml.v3"
)

// Frame source kinds.
const (
	SourceDir  = "dir"
	SourceMock = "mock"
)

// Permission modes.
const (
	PermissionsDevice = "device"
	PermissionsStatic = "static"
)

// Scanner is the handheld client's configuration.
type Scanner struct {
	Server      EndpointConfig    `yaml:"server"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Frames      FramesConfig      `yaml:"frames"`
	Permissions PermissionsConfig `yaml:"permissions"`
	LogFile     string            `yaml:"log_file"`
}

type EndpointConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type DispatchConfig struct {
	AckMode    string        `yaml:"ack_mode"`
	AckTimeout time.Duration `yaml:"ack_timeout"`
}

type FramesConfig struct {
	Source          string        `yaml:"source"`
	Dir             string        `yaml:"dir"`
	Interval        time.Duration `yaml:"interval"`
	RemoveProcessed bool          `yaml:"remove_processed"`
	Symbologies     []string      `yaml:"symbologies"`
	MockPayloads    []string      `yaml:"mock_payloads"`
}

type PermissionsConfig struct {
	Mode       string `yaml:"mode"`
	Camera     bool   `yaml:"camera"`
	Media      bool   `yaml:"media"`
	CameraPath string `yaml:"camera_path"`
	MediaDir   string `yaml:"media_dir"`
}

// DefaultScanner returns the scanner defaults.
func DefaultScanner() *Scanner {
	return &Scanner{
		Server: EndpointConfig{
			URL: "ws://127.0.0.1:3000/ws",
		},
		Dispatch: DispatchConfig{
			AckMode:    string(dispatch.Optimistic),
			AckTimeout: dispatch.DefaultAckTimeout,
		},
		Frames: FramesConfig{
			Source:      SourceDir,
			Dir:         "frames",
			Interval:    100 * time.Millisecond,
			Symbologies: []string{string(scan.QR), string(scan.EAN13)},
			MockPayloads: []string{
				"ABC123",
				"5901234123457",
				"https://example.com/item/42",
				"XYZ789",
			},
		},
		Permissions: PermissionsConfig{
			Mode:     PermissionsDevice,
			MediaDir: "media",
		},
		LogFile: "scanner.log",
	}
}

// LoadScanner reads path over the defaults. A missing file yields the
// defaults unchanged.
func LoadScanner(path string) (*Scanner, error) {
	cfg := DefaultScanner()
	if err := loadInto(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Permissions.CameraPath == "" {
		cfg.Permissions.CameraPath = cfg.Frames.Dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the scanner cannot run with.
func (c *Scanner) Validate() error {
	var errs []error
	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	}
	if _, err := dispatch.ParseAckMode(c.Dispatch.AckMode); err != nil {
		errs = append(errs, fmt.Errorf("dispatch.ack_mode: %w", err))
	}
	switch c.Frames.Source {
	case SourceDir:
		if c.Frames.Dir == "" {
			errs = append(errs, errors.New("frames.dir is required for the dir source"))
		}
	case SourceMock:
		if len(c.Frames.MockPayloads) == 0 {
			errs = append(errs, errors.New("frames.mock_payloads is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("frames.source: unknown source %q", c.Frames.Source))
	}
	if _, err := c.SymbologyList(); err != nil {
		errs = append(errs, fmt.Errorf("frames.symbologies: %w", err))
	}
	switch c.Permissions.Mode {
	case PermissionsDevice, PermissionsStatic:
	default:
		errs = append(errs, fmt.Errorf("permissions.mode: unknown mode %q", c.Permissions.Mode))
	}
	return errors.Join(errs...)
}

// SymbologyList parses Frames.Symbologies.
func (c *Scanner) SymbologyList() ([]scan.Symbology, error) {
	if len(c.Frames.Symbologies) == 0 {
		return scan.DefaultSymbologies, nil
	}
	out := make([]scan.Symbology, 0, len(c.Frames.Symbologies))
	for _, s := range c.Frames.Symbologies {
		sym, err := scan.ParseSymbology(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}

// Listener is the remote endpoint's configuration.
type Listener struct {
	Server   ListenServerConfig `yaml:"server"`
	Listener ListenerConfig     `yaml:"listener"`
}

type ListenServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ListenerConfig struct {
	HistorySize     int     `yaml:"history_size"`
	EventsPerSecond float64 `yaml:"events_per_second"`
	Burst           int     `yaml:"burst"`
	BroadcastBuffer int     `yaml:"broadcast_buffer"`
}

// DefaultListener returns the listener defaults.
func DefaultListener() *Listener {
	return &Listener{
		Server: ListenServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Listener: ListenerConfig{
			HistorySize:     500,
			EventsPerSecond: 20,
			Burst:           10,
			BroadcastBuffer: 64,
		},
	}
}

// LoadListener reads path over the defaults. A missing file yields the
// defaults unchanged.
func LoadListener(path string) (*Listener, error) {
	cfg := DefaultListener()
	if err := loadInto(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the listener cannot run with.
func (c *Listener) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Listener.HistorySize <= 0 {
		errs = append(errs, errors.New("listener.history_size must be positive"))
	}
	if c.Listener.EventsPerSecond <= 0 {
		errs = append(errs, errors.New("listener.events_per_second must be positive"))
	}
	if c.Listener.Burst <= 0 {
		errs = append(errs, errors.New("listener.burst must be positive"))
	}
	if c.Listener.BroadcastBuffer <= 0 {
		errs = append(errs, errors.New("listener.broadcast_buffer must be positive"))
	}
	return errors.Join(errs...)
}

func loadInto(path string, cfg interface{}) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
