package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/atriumlabs/twinctl/internal/anchor"
	"github.com/atriumlabs/twinctl/internal/config"
	"github.com/atriumlabs/twinctl/internal/floors"
	"github.com/atriumlabs/twinctl/internal/inspect"
	"github.com/atriumlabs/twinctl/internal/logging"
	"github.com/atriumlabs/twinctl/internal/observability"
	"github.com/atriumlabs/twinctl/internal/server"
	"github.com/atriumlabs/twinctl/internal/telemetry"
	"github.com/atriumlabs/twinctl/internal/uistate"
	"github.com/atriumlabs/twinctl/internal/viewpoint"
)

func main() {
	var (
		configPath = flag.String("config", "twin.toml", "path to twin config")
		writeTmpl  = flag.Bool("template", false, "write a starter config to -config and exit")
	)
	flag.Parse()

	if *writeTmpl {
		if err := config.WriteTemplate(*configPath, false); err != nil {
			fmt.Fprintf(os.Stderr, "twinctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *configPath)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "twinctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logging.ConfigureRuntime()
	observability.RegisterMetrics()

	cfg, err := config.LoadTwinConfig(configPath)
	if err != nil {
		return err
	}

	reg, err := anchor.NewRegistry(config.AnchorDefs(cfg.Anchors))
	if err != nil {
		return err
	}
	home, err := reg.Resolve(cfg.Floors.Home)
	if err != nil {
		return err
	}

	vp := viewpoint.NewController(reg, viewpoint.Config{InitialPose: home.Pose})
	states := uistate.NewRegistry()

	floorCfg, err := config.FloorMachineConfig(cfg)
	if err != nil {
		return err
	}
	fm, err := floors.NewMachine(vp, states, floorCfg)
	if err != nil {
		return err
	}

	// The client and coordinator reference each other: the client
	// forwards inbound envelopes, the coordinator sends through the
	// client. The handler closure breaks the construction cycle; no
	// envelope arrives before client.Run starts.
	var coord *telemetry.Coordinator
	client := telemetry.NewClient(config.TelemetryClientConfig(cfg.Transport), func(env telemetry.Envelope) {
		coord.HandleEnvelope(env)
	})
	coord = telemetry.NewCoordinator(client, config.CoordinatorConfig(cfg.Transport))
	client.SetDisconnectHook(func(cause error) {
		coord.FailAllPending(cause)
	})

	svc, err := inspect.NewService(config.InspectConfig(cfg.Orchestrator), inspect.Deps{
		Anchors:   reg,
		Viewpoint: vp,
		Floors:    fm,
		States:    states,
		Telemetry: coord,
	}, inspect.Hooks{})
	if err != nil {
		return err
	}

	api, err := server.NewServer(server.Config{
		Name:        cfg.Name,
		Addr:        cfg.Server.Addr,
		CorsOrigins: cfg.Server.CorsOrigins,
	}, svc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("name", cfg.Name).
		Int("anchors", reg.Len()).
		Str("backend", cfg.Transport.URL).
		Str("addr", cfg.Server.Addr).
		Msg("twinctl.boot")

	transportErr := make(chan error, 1)
	inspectErr := make(chan error, 1)
	apiErr := make(chan error, 1)
	go func() {
		transportErr <- client.Run(ctx)
	}()
	go func() {
		inspectErr <- svc.Run(ctx)
	}()
	go func() {
		apiErr <- api.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("twinctl.shutdown")
		return nil
	case err := <-transportErr:
		return err
	case err := <-inspectErr:
		return err
	case err := <-apiErr:
		return err
	}
}
