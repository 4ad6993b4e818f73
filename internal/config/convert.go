package config

import (
	"fmt"
	"time"

	"github.com/atriumlabs/twinctl/internal/anchor"
	"github.com/atriumlabs/twinctl/internal/floors"
	"github.com/atriumlabs/twinctl/internal/inspect"
	"github.com/atriumlabs/twinctl/internal/telemetry"
)

// AnchorDefs converts the configured anchor entries into registry
// definitions, in file order.
func AnchorDefs(entries []AnchorConfig) []anchor.Anchor {
	defs := make([]anchor.Anchor, 0, len(entries))
	for _, entry := range entries {
		defs = append(defs, anchor.Anchor{
			ID:       entry.ID,
			ParentID: entry.Parent,
			Pose: anchor.Pose{
				X:     entry.X,
				Y:     entry.Y,
				Z:     entry.Z,
				Yaw:   entry.Yaw,
				Pitch: entry.Pitch,
			},
		})
	}
	return defs
}

// FloorMachineConfig resolves the configured slug bindings into floor
// values. Unknown slugs are configuration errors.
func FloorMachineConfig(cfg TwinConfig) (floors.Config, error) {
	bindings := make(map[floors.Floor]string, len(cfg.Floors.Bindings))
	for slug, anchorID := range cfg.Floors.Bindings {
		floor, err := floors.Parse(slug)
		if err != nil {
			return floors.Config{}, fmt.Errorf("floor binding %q: %w", slug, err)
		}
		bindings[floor] = anchorID
	}
	return floors.Config{
		Bindings:           bindings,
		HomeAnchorID:       cfg.Floors.Home,
		TransitionDuration: cfg.Orchestrator.Transition(),
	}, nil
}

// TelemetryClientConfig maps transport settings onto the websocket
// client. Zero-valued fields fall back to client defaults.
func TelemetryClientConfig(cfg TransportConfig) telemetry.ClientConfig {
	out := telemetry.ClientConfig{
		URL:              cfg.URL,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		WriteTimeout:     cfg.WriteTimeout(),
	}
	if cfg.BackoffInitialMS > 0 {
		out.Backoff = telemetry.BackoffConfig{
			InitialDelay: time.Duration(cfg.BackoffInitialMS) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
			Multiplier:   cfg.BackoffMult,
			Jitter:       cfg.BackoffJitter,
		}
	}
	return out
}

// CoordinatorConfig maps transport settings onto the request pipeline.
func CoordinatorConfig(cfg TransportConfig) telemetry.Config {
	return telemetry.Config{RequestTimeout: cfg.RequestTimeout()}
}

// InspectConfig maps orchestrator settings onto the inspection service.
func InspectConfig(cfg OrchestratorConfig) inspect.Config {
	return inspect.Config{
		TickInterval:       cfg.Tick(),
		HeartbeatInterval:  cfg.Heartbeat(),
		TransitionDuration: cfg.Transition(),
		DetailPanelGroup:   cfg.DetailPanelGroup,
	}
}
