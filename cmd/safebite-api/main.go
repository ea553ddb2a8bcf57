package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-print"

	"github.com/safebite/safebite-api/config"
	"github.com/safebite/safebite-api/logging"
	"github.com/safebite/safebite-api/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", os.Getenv("SAFEBITE_CONFIG"), "optional path to a config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "safebite-api: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.IsDevelopment() {
		logger.Debug("configuration:\n%s", print.MaybePrettyJSON(cfg.Redacted()))
	}

	ctx := context.Background()

	srv, err := server.New(ctx, cfg, server.WithLogger(logger.Named("http")))
	if err != nil {
		return err
	}

	go func() {
		logger.Info("listening on :%d (%s)", cfg.Port, cfg.Env)
		if err := srv.Listen(); err != nil {
			logger.Error("server stopped: %v", err)
		}
	}()

	sig := WaitExitSignal()
	logger.Info("received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return srv.Shutdown(ctx)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(
		ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
