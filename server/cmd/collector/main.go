package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/trackrelay/trackrelay/server/internal/api"
	"github.com/trackrelay/trackrelay/server/internal/config"
	"github.com/trackrelay/trackrelay/server/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("trackrelay-collector exited", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		port       int
	)
	fs := pflag.NewFlagSet("trackrelay-collector", pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	fs.IntVar(&port, "port", 0, "override collector.http_port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level})))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	c := cfg.Collector
	if port != 0 {
		c.HTTPPort = port
	}
	level.Set(parseLevel(c.LogLevel))

	secret := c.Secret()
	slog.Info("trackrelay-collector starting",
		"config", configPath,
		"http_port", c.HTTPPort,
		"auth", secret != "",
		"retention", c.Retention,
		"max_points_per_device", c.MaxPointsPerDevice,
	)
	if secret == "" {
		slog.Warn("no bearer secret configured, accepting unauthenticated batches", "secret_env", c.SecretEnv)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(c.Retention, c.MaxPointsPerDevice)
	go st.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.HTTPPort),
		Handler:           api.New(st, api.Options{Secret: secret, MaxBodyBytes: c.MaxBodyBytes}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	slog.Info("trackrelay-collector shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
