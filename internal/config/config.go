package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// TwinConfig is the full runtime configuration for one twin host:
// the building's anchor graph, floor bindings, backend transport, and
// the orchestrator's tunables.
type TwinConfig struct {
	Name    string         `toml:"name"`
	Anchors []AnchorConfig `toml:"anchors"`

	Floors       FloorsConfig       `toml:"floors"`
	Transport    TransportConfig    `toml:"transport"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Server       ServerConfig       `toml:"server"`
}

// AnchorConfig is one named viewpoint target in the building.
type AnchorConfig struct {
	ID     string  `toml:"id"`
	Parent string  `toml:"parent"`
	X      float64 `toml:"x"`
	Y      float64 `toml:"y"`
	Z      float64 `toml:"z"`
	Yaw    float64 `toml:"yaw"`
	Pitch  float64 `toml:"pitch"`
}

// FloorsConfig binds floor slugs (ground, first, roof, custom:N) to
// anchor ids. Home receives the viewpoint on reset.
type FloorsConfig struct {
	Home     string            `toml:"home"`
	Bindings map[string]string `toml:"bindings"`
}

// TransportConfig configures the persistent telemetry connection.
type TransportConfig struct {
	URL                string `toml:"url"`
	HandshakeTimeoutMS int    `toml:"handshake_timeout_ms"`
	WriteTimeoutMS     int    `toml:"write_timeout_ms"`
	RequestTimeoutMS   int    `toml:"request_timeout_ms"`

	BackoffInitialMS int     `toml:"backoff_initial_ms"`
	BackoffMaxMS     int     `toml:"backoff_max_ms"`
	BackoffMult      float64 `toml:"backoff_multiplier"`
	BackoffJitter    bool    `toml:"backoff_jitter"`
}

// OrchestratorConfig tunes the inspection loop.
type OrchestratorConfig struct {
	TickMS           int    `toml:"tick_ms"`
	HeartbeatMS      int    `toml:"heartbeat_ms"`
	TransitionMS     int    `toml:"transition_ms"`
	DetailPanelGroup string `toml:"detail_panel_group"`
}

// ServerConfig configures the diagnostics HTTP endpoint.
type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

func LoadTwinConfig(path string) (TwinConfig, error) {
	var cfg TwinConfig
	if err := loadToml(path, &cfg); err != nil {
		return TwinConfig{}, err
	}
	applyDefaults(&cfg)
	if err := ValidateTwinConfig(cfg); err != nil {
		return TwinConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *TwinConfig) {
	if cfg.Name == "" {
		cfg.Name = "twinctl"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":9300"
	}
	if cfg.Transport.URL == "" {
		cfg.Transport.URL = "ws://localhost:9400/telemetry"
	}
	if cfg.Transport.RequestTimeoutMS <= 0 {
		cfg.Transport.RequestTimeoutMS = 10_000
	}
	if cfg.Orchestrator.TickMS <= 0 {
		cfg.Orchestrator.TickMS = 50
	}
	if cfg.Orchestrator.TransitionMS <= 0 {
		cfg.Orchestrator.TransitionMS = 1500
	}
}

func ValidateTwinConfig(cfg TwinConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("twin config missing name")
	}
	if len(cfg.Anchors) == 0 {
		return fmt.Errorf("twin config has no anchors")
	}
	seen := make(map[string]bool, len(cfg.Anchors))
	for i, a := range cfg.Anchors {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("anchor[%d] missing id", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("anchor[%d] duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
	}
	if strings.TrimSpace(cfg.Floors.Home) == "" {
		return fmt.Errorf("floors config missing home anchor")
	}
	if !seen[cfg.Floors.Home] {
		return fmt.Errorf("floors home %q is not a configured anchor", cfg.Floors.Home)
	}
	for slug, anchorID := range cfg.Floors.Bindings {
		if !seen[anchorID] {
			return fmt.Errorf("floor %q bound to unknown anchor %q", slug, anchorID)
		}
	}
	if !strings.HasPrefix(cfg.Transport.URL, "ws://") && !strings.HasPrefix(cfg.Transport.URL, "wss://") {
		return fmt.Errorf("transport url must be ws:// or wss://, got %q", cfg.Transport.URL)
	}
	return nil
}

// Durations converted once at wiring time so the rest of the tree
// never sees raw millisecond ints.

func (t TransportConfig) HandshakeTimeout() time.Duration {
	return time.Duration(t.HandshakeTimeoutMS) * time.Millisecond
}

func (t TransportConfig) WriteTimeout() time.Duration {
	return time.Duration(t.WriteTimeoutMS) * time.Millisecond
}

func (t TransportConfig) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutMS) * time.Millisecond
}

func (o OrchestratorConfig) Tick() time.Duration {
	return time.Duration(o.TickMS) * time.Millisecond
}

func (o OrchestratorConfig) Heartbeat() time.Duration {
	return time.Duration(o.HeartbeatMS) * time.Millisecond
}

func (o OrchestratorConfig) Transition() time.Duration {
	return time.Duration(o.TransitionMS) * time.Millisecond
}
