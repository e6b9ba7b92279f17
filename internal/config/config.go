package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cwpctl/internal/engine"
	"github.com/danmuck/cwpctl/internal/logging"
	"github.com/danmuck/cwpctl/internal/protocol/frame"
	"github.com/danmuck/cwpctl/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	DefaultHost  = "cwp.opimobi.com"
	DefaultPort  = 20000
	DefaultSpeed = "med"
)

// Speed presets in milliseconds per unit.
var speeds = map[string]time.Duration{
	"fast": 50 * time.Millisecond,
	"med":  100 * time.Millisecond,
	"slow": 200 * time.Millisecond,
}

// SpeedWidth maps a fast/med/slow preset to its unit width.
func SpeedWidth(name string) (time.Duration, bool) {
	d, ok := speeds[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Client is the resolved cwpctl configuration.
type Client struct {
	Server           engine.Config
	Frequency        int64
	MaxLatencyBuffer time.Duration
	Session          session.Config
	MetricsAddr      string
	LogLevel         string
}

func Default() Client {
	width, _ := SpeedWidth(DefaultSpeed)
	return Client{
		Server: engine.Config{
			Host:              DefaultHost,
			Port:              DefaultPort,
			UnitWidth:         width,
			LatencyManagement: true,
		},
		Frequency:        engine.DefaultFrequency,
		MaxLatencyBuffer: engine.DefaultMaxLatencyBuffer,
		Session:          session.DefaultConfig(),
	}
}

type fileConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	MorseSpeed        string `toml:"morse_speed"`
	UnitWidthMS       int64  `toml:"unit_width_ms"`
	LatencyManagement bool   `toml:"latency_management"`
	MaxLatencyBuffer  string `toml:"max_latency_buffer"`
	Frequency         int64  `toml:"frequency"`
	MetricsAddr       string `toml:"metrics_addr"`
	LogLevel          string `toml:"log_level"`

	Retry retryConfig `toml:"retry"`
}

type retryConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	ResolveDelay   string `toml:"resolve_delay"`
	ConnectDelay   string `toml:"connect_delay"`
	HardErrorDelay string `toml:"hard_error_delay"`
	MaxIdleWait    string `toml:"max_idle_wait"`
}

// Load reads path over Default. Keys absent from the file keep their defaults.
func Load(path string) (Client, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("load cwp config: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.Server.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Server.Port = raw.Port
	}
	if meta.IsDefined("morse_speed") {
		width, ok := SpeedWidth(raw.MorseSpeed)
		if !ok {
			return Client{}, fmt.Errorf("%w: morse_speed %q (want fast, med or slow)", ErrInvalidConfig, raw.MorseSpeed)
		}
		cfg.Server.UnitWidth = width
	}
	if meta.IsDefined("unit_width_ms") {
		cfg.Server.UnitWidth = time.Duration(raw.UnitWidthMS) * time.Millisecond
	}
	if meta.IsDefined("latency_management") {
		cfg.Server.LatencyManagement = raw.LatencyManagement
	}
	if meta.IsDefined("frequency") {
		cfg.Frequency = raw.Frequency
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"max_latency_buffer", raw.MaxLatencyBuffer, &cfg.MaxLatencyBuffer},
		{"retry.connect_timeout", raw.Retry.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"retry.resolve_delay", raw.Retry.ResolveDelay, &cfg.Session.ResolveBackoff.InitialDelay},
		{"retry.connect_delay", raw.Retry.ConnectDelay, &cfg.Session.ConnectBackoff.InitialDelay},
		{"retry.hard_error_delay", raw.Retry.HardErrorDelay, &cfg.Session.HardErrorDelay},
		{"retry.max_idle_wait", raw.Retry.MaxIdleWait, &cfg.Session.MaxIdleWait},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Client{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func (c Client) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !frame.ValidFrequency(c.Frequency) {
		return fmt.Errorf("%w: frequency %d", ErrInvalidConfig, c.Frequency)
	}
	if c.MaxLatencyBuffer < 0 {
		return fmt.Errorf("%w: max_latency_buffer %v", ErrInvalidConfig, c.MaxLatencyBuffer)
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
		}
	}
	return nil
}

// EngineOptions converts c into engine options.
func (c Client) EngineOptions() engine.Options {
	return engine.Options{
		Session:          c.Session,
		MaxLatencyBuffer: c.MaxLatencyBuffer,
		Frequency:        c.Frequency,
	}
}
