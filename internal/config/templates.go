package config

import (
	"fmt"
	"os"
)

func Template() string {
	return twinTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(twinTemplate), 0o600)
}

const twinTemplate = `name = "twinctl"

[[anchors]]
id = "building-overview"
y = 42.0
pitch = -60.0

[[anchors]]
id = "floor-ground"
parent = "building-overview"
y = 9.0
pitch = -35.0

[[anchors]]
id = "floor-first"
parent = "building-overview"
y = 13.0
pitch = -35.0

[[anchors]]
id = "ahu-01"
parent = "floor-ground"
x = 4.5
y = 7.0
z = 2.0
yaw = 120.0

[floors]
home = "building-overview"

[floors.bindings]
ground = "floor-ground"
first = "floor-first"

[transport]
url = "ws://localhost:9400/telemetry"
request_timeout_ms = 10000
backoff_initial_ms = 250
backoff_max_ms = 5000
backoff_multiplier = 2.0
backoff_jitter = true

[orchestrator]
tick_ms = 50
heartbeat_ms = 5000
transition_ms = 1500
detail_panel_group = "detail-inspection"

[server]
addr = ":9300"
cors_origins = ["http://localhost:3000"]
`
