// Command coachd is the coaching pipeline's process entrypoint: it loads
// configuration, selects a simulator connector, wires the Process
// Supervisor, and serves the UI Transport and Advice Query Interface
// over HTTP until an interrupt is received.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psybedev/coachtrace/internal/config"
	"github.com/psybedev/coachtrace/internal/remotecoach"
	"github.com/psybedev/coachtrace/internal/sim"
	"github.com/psybedev/coachtrace/internal/supervisor"
	"github.com/rs/zerolog"
)

func main() {
	simType := flag.String("sim", "mock", "simulator connector to use: mock, iracing, acc")
	addr := flag.String("addr", ":8710", "HTTP listen address for the UI Transport and Advice Query Interface")
	configPath := flag.String("config", "", "optional JSON config file overriding defaults")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	connector, err := connectorFor(*simType)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct simulator connector")
	}

	var remoteClient remotecoach.Client
	if cfg.GeminiAPIKey != "" {
		ctx := context.Background()
		c, err := remotecoach.NewGenAIClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiMaxTokens, cfg.GeminiTemperature)
		if err != nil {
			log.Warn().Err(err).Msg("remote coach client unavailable, falling back to local-only coaching")
		} else {
			remoteClient = c
		}
	} else {
		log.Info().Msg("no Gemini API key configured, remote enrichment disabled")
	}

	// TrackGenerator is left nil: no remote segment-authoring backend is
	// wired yet, so the Track Metadata Store falls back to its disk tier
	// and the fail-soft degenerate segment (see DESIGN.md).
	sup := supervisor.New(cfg, supervisor.Deps{
		Connector:    connector,
		RemoteClient: remoteClient,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/ws", sup.Transport())
	mux.Handle("/advice/", sup.Advice())
	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info().Str("addr", *addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server exited unexpectedly")
		}
	}()

	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Error().Err(err).Msg("supervisor exited unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), supervisor.GracePeriod)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := cfg.FromJSON(data); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func connectorFor(name string) (sim.Connector, error) {
	switch name {
	case "mock":
		return sim.NewMockConnector(nil, nil), nil
	case "iracing":
		return sim.NewIRacingConnector(), nil
	case "acc":
		return sim.NewACCConnector(), nil
	default:
		return nil, fmt.Errorf("unknown simulator connector %q (want mock, iracing, or acc)", name)
	}
}
