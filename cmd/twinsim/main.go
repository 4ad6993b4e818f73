// twinsim is a stand-in telemetry backend for local development: it
// serves the twinctl wire protocol over a websocket endpoint and
// answers discovery/fetch requests from a TOML fixture of entities,
// devices, and live field values.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/logging"
	"github.com/atriumlabs/twinctl/internal/telemetry"
)

type fixture struct {
	Entities []entityFixture `toml:"entities"`
}

type entityFixture struct {
	ID      string          `toml:"id"`
	Devices []deviceFixture `toml:"devices"`
}

type deviceFixture struct {
	ID     string            `toml:"id"`
	Fields map[string]string `toml:"fields"`
}

const defaultFixture = `[[entities]]
id = "ahu-01"

[[entities.devices]]
id = "ahu-01-sensor"

[entities.devices.fields]
temp = "21.5"
fan_speed = "62"
filter_status = "ok"

[[entities]]
id = "pump-02"

[[entities.devices]]
id = "pump-02-drive"

[entities.devices.fields]
flow = "4.2"
pressure = "1.8"
`

type simulator struct {
	entities map[string][]deviceFixture
	devices  map[string]deviceFixture
	delay    time.Duration
	upgrader websocket.Upgrader
}

func newSimulator(fx fixture, delay time.Duration) (*simulator, error) {
	s := &simulator{
		entities: make(map[string][]deviceFixture),
		devices:  make(map[string]deviceFixture),
		delay:    delay,
	}
	for i, entity := range fx.Entities {
		if strings.TrimSpace(entity.ID) == "" {
			return nil, fmt.Errorf("entity[%d] missing id", i)
		}
		s.entities[entity.ID] = entity.Devices
		for j, dev := range entity.Devices {
			if strings.TrimSpace(dev.ID) == "" {
				return nil, fmt.Errorf("entity %q device[%d] missing id", entity.ID, j)
			}
			s.devices[dev.ID] = dev
		}
	}
	return s, nil
}

func (s *simulator) serveTelemetry(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("twinsim.upgrade_failed")
		return
	}
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("twinsim.session_open")

	var writeMu sync.Mutex
	send := func(env telemetry.Envelope) {
		data, err := telemetry.EncodeEnvelope(env)
		if err != nil {
			log.Error().Err(err).Str("type", env.Type).Msg("twinsim.encode_failed")
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Msg("twinsim.write_failed")
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Str("remote", remote).Err(err).Msg("twinsim.session_closed")
			return
		}
		env, err := telemetry.DecodeEnvelope(data)
		if err != nil {
			log.Warn().Err(err).Msg("twinsim.bad_envelope")
			continue
		}
		// Responses run on their own goroutine so a slow artificial
		// delay never blocks the read loop.
		go s.respond(env, send)
	}
}

func (s *simulator) respond(env telemetry.Envelope, send func(telemetry.Envelope)) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	switch env.Type {
	case telemetry.MsgHello:
		log.Info().
			Str("client_id", env.Hello.ClientID).
			Int("protocol", env.Hello.ProtocolVersion).
			Msg("twinsim.hello")

	case telemetry.MsgDiscoverEquipment:
		req := env.Discover
		devices := s.entities[req.EntityID]
		ids := make([]string, 0, len(devices))
		for _, dev := range devices {
			ids = append(ids, dev.ID)
		}
		log.Info().
			Uint64("request", req.RequestID).
			Str("entity", req.EntityID).
			Int("devices", len(ids)).
			Msg("twinsim.discover")
		send(telemetry.Envelope{
			Type: telemetry.MsgDiscoveryResult,
			Found: &telemetry.DiscoveryResult{
				RequestID: req.RequestID,
				EntityID:  req.EntityID,
				DeviceIDs: ids,
			},
		})

	case telemetry.MsgFetchLiveData:
		req := env.Fetch
		dev, ok := s.devices[req.DeviceID]
		if !ok {
			send(telemetry.Envelope{
				Type: telemetry.MsgError,
				Err: &telemetry.WireError{
					RequestID: req.RequestID,
					Code:      telemetry.CodeInternal,
					Message:   fmt.Sprintf("unknown device %q", req.DeviceID),
				},
			})
			return
		}
		log.Info().
			Uint64("request", req.RequestID).
			Str("device", req.DeviceID).
			Msg("twinsim.fetch")
		send(telemetry.Envelope{
			Type: telemetry.MsgLiveDataResult,
			Live: &telemetry.LiveDataResult{
				RequestID: req.RequestID,
				DeviceID:  req.DeviceID,
				Fields:    dev.Fields,
			},
		})

	default:
		log.Debug().Str("type", env.Type).Msg("twinsim.ignored")
	}
}

func loadFixture(path string) (fixture, error) {
	data := []byte(defaultFixture)
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return fixture{}, fmt.Errorf("fixture load failed (%s): %w", path, err)
		}
	}
	var fx fixture
	if err := toml.Unmarshal(data, &fx); err != nil {
		return fixture{}, fmt.Errorf("fixture parse failed: %w", err)
	}
	if len(fx.Entities) == 0 {
		return fixture{}, fmt.Errorf("fixture has no entities")
	}
	return fx, nil
}

func main() {
	var (
		addr        = flag.String("addr", ":9400", "listen address")
		fixturePath = flag.String("fixture", "", "TOML fixture path (builtin demo data when empty)")
		delayMS     = flag.Int("delay", 150, "artificial response delay in milliseconds")
	)
	flag.Parse()

	logging.ConfigureRuntime()

	fx, err := loadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "twinsim: %v\n", err)
		os.Exit(1)
	}
	sim, err := newSimulator(fx, time.Duration(*delayMS)*time.Millisecond)
	if err != nil {
		fmt.Fprintf(os.Stderr, "twinsim: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/telemetry", sim.serveTelemetry)

	srv := &http.Server{Addr: *addr, Handler: mux}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info().
		Str("addr", *addr).
		Int("entities", len(sim.entities)).
		Dur("delay", sim.delay).
		Msg("twinsim.listen")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "twinsim: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("twinsim.shutdown")
}
