package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/trackrelay/trackrelay/agent/internal/buffer"
	"github.com/trackrelay/trackrelay/agent/internal/config"
	"github.com/trackrelay/trackrelay/agent/internal/control"
	"github.com/trackrelay/trackrelay/agent/internal/device"
	"github.com/trackrelay/trackrelay/agent/internal/fix"
	"github.com/trackrelay/trackrelay/agent/internal/flush"
	"github.com/trackrelay/trackrelay/agent/internal/metrics"
	"github.com/trackrelay/trackrelay/agent/internal/security"
	"github.com/trackrelay/trackrelay/agent/internal/upload"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("trackrelay-agent exited", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		logLevel   string
		autoStart  bool
	)
	fs := pflag.NewFlagSet("trackrelay-agent", pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	fs.StringVar(&logLevel, "log-level", "", "override agent.log_level (debug|info|warn|error)")
	fs.BoolVar(&autoStart, "start", true, "start location updates immediately")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level})))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyLevel(&level, cfg.Agent.LogLevel, logLevel)
	a := cfg.Agent
	slog.Info("trackrelay-agent starting",
		"config", configPath,
		"endpoint", a.Endpoint,
		"flush_interval", a.FlushInterval,
		"fix_source", a.FixSource.Type,
	)
	if a.Secret() == "" {
		slog.Warn("no bearer secret configured, requests will be rejected by an authenticating collector",
			"secret_env", a.SecretEnv)
	}

	identity, err := device.NewFileIdentity(a.Device)
	if err != nil {
		return err
	}
	src, err := fix.New(a.FixSource)
	if err != nil {
		return err
	}
	up, err := upload.New(a)
	if err != nil {
		return err
	}

	m := metrics.New()
	buf := buffer.New(m.SetPending)
	ingest := fix.NewIngestor(buf, a.MaxAccuracyMeters, m)
	sched := flush.New(a, buf, up, identity, device.NewSysfsBattery(a.Device.BatteryPath), m)
	ctrl := control.New(src, ingest, buf, up, sched, a.StopTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			applyLevel(&level, updated.Agent.LogLevel, logLevel)
			identity.Set(updated.Agent.Device.ID)
			if restartNeeded(a, updated.Agent) {
				slog.Warn("config changed in fields that need a restart to take effect")
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()
	go func() {
		if err := identity.Watch(ctx); err != nil {
			slog.Error("device id watcher stopped", "err", err)
		}
	}()

	go watchCertificate(ctx, a, m)

	var srv *http.Server
	if a.Control.Listen != "" {
		hub := control.NewHub(ctrl.Status, a.Control.StatusInterval)
		go hub.Run(ctx)
		srv = &http.Server{
			Addr:              a.Control.Listen,
			Handler:           control.NewHandler(ctrl, m.Handler(), hub),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		go func() {
			slog.Info("control server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("control server error", "err", err)
				cancel()
			}
		}()
	}

	if autoStart {
		ctrl.StartUpdates()
	}

	<-ctx.Done()
	slog.Info("trackrelay-agent shutting down")

	rep := ctrl.StopUpdates(context.Background())
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("control server shutdown", "err", err)
		}
	}
	if n := buf.Len(); n > 0 {
		slog.Warn("samples not delivered before exit", "pending", n, "last_outcome", rep.Last.Kind.String())
	}
	return nil
}

// watchCertificate checks the endpoint certificate now and once a day.
func watchCertificate(ctx context.Context, a config.AgentConfig, m *metrics.Metrics) {
	tlsCfg, err := upload.TLSClientConfig(a.TLS)
	if err != nil {
		slog.Error("certificate check disabled", "err", err)
		return
	}
	check := func() bool {
		cs, ok := security.CheckEndpoint(ctx, a.Endpoint, tlsCfg)
		if !ok {
			return false
		}
		security.Log(cs)
		if cs.Status != "unreachable" {
			m.SetCertDaysLeft(cs.DaysLeft)
		}
		return true
	}
	if !check() {
		return
	}
	t := time.NewTicker(24 * time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}

// applyLevel sets level from the config value unless a flag overrides it.
func applyLevel(level *slog.LevelVar, fromConfig, override string) {
	s := fromConfig
	if override != "" {
		s = override
	}
	l, err := config.ParseLevel(s)
	if err != nil {
		slog.Warn("ignoring invalid log level", "level", s, "err", err)
		return
	}
	level.Set(l)
}

// restartNeeded reports whether next differs from prev outside the fields
// that are applied live (log level and device id).
func restartNeeded(prev, next config.AgentConfig) bool {
	prev.LogLevel, next.LogLevel = "", ""
	prev.Device.ID, next.Device.ID = "", ""
	return prev != next
}
