package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/detector"
	"github.com/loykin/warden/internal/history"
	chsink "github.com/loykin/warden/internal/history/clickhouse"
	"github.com/loykin/warden/internal/interop"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/session"
	"github.com/loykin/warden/internal/store"
	"github.com/loykin/warden/internal/topic"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Launch or reattach to the engine and supervise it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := cfg.Log.New()
	slog.SetDefault(log)

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	sink, err := buildSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen, log)
	}

	ch := interop.NewChannel()
	srv, err := interop.NewServer(cfg.Interop.Listen, cfg.Interop.BasePath, ch)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	ctrl, mode, err := buildController(ctx, cfg, st, sink, ch, log)
	if err != nil {
		return err
	}
	metrics.IncLaunch(cfg.Instance.Name, mode)
	log.Info("session supervising engine", "mode", mode, "interop", cfg.Interop.Listen)

	exitCh := make(chan int, 1)
	go func() {
		code, werr := ctrl.Lifetime(context.Background())
		if werr == nil {
			exitCh <- code
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("shutdown signal received; detaching from engine", "signal", s.String())
		rec, art, rerr := ctrl.Release(ctx)
		if rerr != nil {
			return rerr
		}
		if art != nil {
			defer func() { _ = art.Close() }()
		}
		log.Info("reattach record persisted; engine left running", "pid", rec.PID, "port", rec.Port)
		return nil
	case code := <-exitCh:
		log.Info("engine exited", "code", code)
		if ok, aerr := ctrl.APIValidated(); aerr == nil {
			log.Info("api validation observed", "validated", ok)
		}
		if derr := st.Delete(ctx, cfg.Instance.Name); derr != nil {
			log.Warn("failed to delete reattach record", "err", derr)
		}
		return ctrl.Dispose(ctx)
	}
}

// buildController reattaches when a persisted record still matches a live
// process; otherwise it launches the engine fresh under a new access token.
func buildController(
	ctx context.Context,
	cfg *config.Config,
	st store.Store,
	sink history.Sink,
	ch *interop.Channel,
	log *slog.Logger,
) (*session.Controller, string, error) {
	name := cfg.Instance.Name
	rec, found, err := st.Load(ctx, name)
	if err != nil {
		return nil, "", err
	}

	mode := "fresh"
	var proc *process.Process
	if found {
		id := detector.Identity{PID: rec.PID, StartUnix: rec.StartUnix}
		if id.Alive() {
			proc, err = process.Reattach(id, process.Options{Instance: name, Logger: log})
			if err == nil {
				mode = "reattach"
			} else {
				log.Warn("stale reattach record; launching fresh", "pid", rec.PID, "err", err)
			}
		}
	}
	if proc == nil {
		outW, errW, werr := cfg.Log.Writers(name)
		if werr != nil {
			return nil, "", werr
		}
		rec = store.Record{
			Instance:    name,
			AccessToken: session.NewAccessToken(),
			Port:        cfg.Instance.Port,
			Primary:     cfg.Instance.Primary,
			Security:    store.SecurityLevel(cfg.Instance.Security),
			Visibility:  store.Visibility(cfg.Instance.Visibility),
			RebootMode:  store.RebootModeNormal,
			ArtifactID:  cfg.Instance.ArtifactID,
		}
		env := append(os.Environ(),
			fmt.Sprintf("WARDEN_ACCESS_IDENTIFIER=%s", rec.AccessToken),
			fmt.Sprintf("WARDEN_INTEROP=%s", cfg.Interop.Listen),
		)
		proc, err = process.Launch(cfg.Instance.Executable, cfg.Instance.Args, process.Options{
			Instance:      name,
			WorkDir:       cfg.Instance.WorkDir,
			Env:           env,
			CaptureOutput: cfg.Instance.CaptureOutput,
			Stdout:        outW,
			Stderr:        errW,
			Logger:        log,
		})
		if err != nil {
			return nil, "", err
		}
		if cfg.Instance.HighPriority {
			proc.SetHighPriority()
		}
		rec.StartUnix = detector.StartUnix(proc.PID())
	}

	if err := proc.Startup(ctx); err != nil {
		_ = proc.Close(ctx)
		return nil, "", err
	}

	ctrl, err := session.New(session.Options{
		Process:   proc,
		Record:    rec,
		Artifact:  session.NewArtifact(cfg.Instance.ArtifactID, cfg.Instance.ArtifactPath, nil),
		Channel:   ch,
		Commander: topic.NewClient(log),
		Store:     st,
		Sink:      sink,
		Logger:    log,
	})
	if err != nil {
		_ = proc.Close(ctx)
		return nil, "", err
	}

	if err := st.Save(ctx, mustRecord(ctrl)); err != nil {
		log.Warn("failed to persist reattach record at startup", "err", err)
	}
	event := history.EventLaunched
	if mode == "reattach" {
		event = history.EventReattached
	}
	if err := sink.Send(ctx, history.Event{
		Type:       event,
		OccurredAt: time.Now().UTC(),
		Instance:   name,
		PID:        proc.PID(),
		Port:       rec.Port,
	}); err != nil {
		log.Debug("history sink rejected event", "err", err)
	}
	return ctrl, mode, nil
}

func mustRecord(ctrl *session.Controller) store.Record {
	rec, _ := ctrl.Record()
	return rec
}

func buildSink(ctx context.Context, cfg *config.Config, log *slog.Logger) (history.Sink, error) {
	switch cfg.History.Driver {
	case "clickhouse":
		s, err := chsink.New(cfg.History.Addr, cfg.History.Table)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return history.NewLogSink(log), nil
	}
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Warn("metrics server stopped", "err", err)
	}
}
