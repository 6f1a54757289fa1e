package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MalikaMari9/GameTheory-BlackJack/internal/config"
	"github.com/MalikaMari9/GameTheory-BlackJack/internal/engine"
	"github.com/MalikaMari9/GameTheory-BlackJack/internal/stateapi"
	"github.com/MalikaMari9/GameTheory-BlackJack/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("server_url", cfg.ServerURL).
		Str("table_id", cfg.TableID).
		Str("listen_addr", cfg.ListenAddr).
		Msg("starting blackjack client")

	clock := clockwork.NewRealClock()
	transport := engine.NewWebsocketTransport(cfg.ServerURL, log.Logger)
	identity := engine.NewFileIdentityStore(cfg.IdentityPath)

	var advisor *strategy.Client
	if cfg.StrategyURL != "" {
		advisor = strategy.NewClient(cfg.StrategyURL, log.Logger)
	}

	controller := engine.NewController(engine.ControllerConfig{
		TableID:    cfg.TableID,
		Nickname:   cfg.Nickname,
		RiskLambda: cfg.RiskLambda,
	}, transport, clock, log.Logger, identity, advisor)

	// Local state API for tooling and debugging overlays
	mux := http.NewServeMux()
	stateapi.NewHandler(controller, log.Logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      cors.AllowAll().Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller.Connect()
	go controller.Run(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("state API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("state API failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("state API shutdown")
	}
	controller.Close()
	log.Info().Msg("shutdown complete")
}
