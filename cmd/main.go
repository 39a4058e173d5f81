package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/andesco/chartless/handlers"
	"github.com/andesco/chartless/pkg/config"
	"github.com/andesco/chartless/pkg/logger"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}

	parser := argparse.NewParser("chartless", "Quote page proxy that strips charts")
	port := parser.String("p", "port", &argparse.Options{
		Required: false,
		Default:  strconv.Itoa(cfg.Port),
		Help:     "Port the webserver will listen on",
	})
	rulesetPath := parser.String("r", "ruleset", &argparse.Options{
		Required: false,
		Default:  cfg.RulesetPath,
		Help:     "File, directory or ';' separated list of YAML rulesets",
	})
	mode := parser.Selector("m", "mode", []string{"remove", "hide"}, &argparse.Options{
		Required: false,
		Default:  cfg.FilterMode,
		Help:     "Remove chart elements or hide them with CSS",
	})
	prefork := parser.Flag("P", "prefork", &argparse.Options{
		Required: false,
		Default:  cfg.Prefork,
		Help:     "Spawn multiple server instances",
	})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if cfg.Port, err = strconv.Atoi(*port); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: invalid port %q\n", *port)
		os.Exit(1)
	}
	cfg.RulesetPath = *rulesetPath
	cfg.FilterMode = *mode
	cfg.Prefork = *prefork

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
	if envErr != nil {
		log.Debug().Msg("no .env file found, relying on environment variables")
	}

	app, err := handlers.NewApp(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app")
	}

	go shutdownOnSignal(log, app.Shutdown)

	log.Info().Str("addr", cfg.Addr()).Str("origin", cfg.Origin).Msg("server running")
	if err := app.Listen(cfg.Addr()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func shutdownOnSignal(log zerolog.Logger, shutdown func() error) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	if err := shutdown(); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
