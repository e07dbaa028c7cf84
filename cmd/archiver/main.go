package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/eargollo/archiver/internal/api"
	"github.com/eargollo/archiver/internal/config"
	"github.com/eargollo/archiver/internal/db"
	"github.com/eargollo/archiver/internal/ingest"
	"github.com/eargollo/archiver/internal/pathlist"
	"github.com/eargollo/archiver/internal/scheduler"
	"github.com/eargollo/archiver/internal/store"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

const usage = `usage: archiver [-config FILE] [-env FILE] <command> [args]

commands:
  serve                                  run the HTTP API and scheduled jobs
  profile create NAME                    create a profile
  profile list                           list profiles
  files -profile ID [-out FILE]          list the files of a profile
  ingest -profile ID [-r] PATH...        digest and catalog files into a profile
`

func main() {
	configPath := flag.String("config", "archiver.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	// ── Logging (initial — overridden below once config is loaded) ─────────
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Config ─────────────────────────────────────────────────────────────
	if err := config.LoadEnv(*envPath); err != nil {
		slog.Warn("load env", "error", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	// ── Database ───────────────────────────────────────────────────────────
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	st := store.New(database)
	mgr := ingest.NewManager(st, cfg.Policy())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	c := &cli{cfg: cfg, store: st, mgr: mgr, out: os.Stdout}
	switch args[0] {
	case "serve":
		err = serve(ctx, cfg, st, mgr)
	case "profile":
		err = c.profile(ctx, args[1:])
	case "files":
		err = c.files(ctx, args[1:])
	case "ingest":
		err = c.ingest(ctx, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error(args[0]+" failed", "error", err)
		database.Close()
		os.Exit(1)
	}
}

// serve runs the HTTP dispatcher and the job scheduler until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, st *store.Store, mgr *ingest.Manager) error {
	slog.Info("archiver starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath,
		"failure_policy", cfg.FailurePolicy,
		"jobs", len(cfg.Jobs))

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	for _, j := range cfg.Jobs {
		j := j
		name := j.Name
		if name == "" {
			name = fmt.Sprintf("profile-%d", j.Profile)
		}
		if err := sched.SetJob(name, j.Schedule, func() { runJob(ctx, cfg, mgr, name, j) }); err != nil {
			slog.Warn("skipping scheduled job", "job", name, "error", err)
		}
	}

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, st, mgr, sched, api.Options{Walkers: cfg.Walkers, Version: version})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	err := g.Wait()
	slog.Info("archiver stopped")
	return err
}

// runJob expands a scheduled job's paths and starts a batch. A batch already
// in flight makes this run a no-op.
func runJob(ctx context.Context, cfg *config.Config, mgr *ingest.Manager, name string, j config.Job) {
	slog.Info("scheduled ingestion triggered", "job", name, "profile_id", j.Profile)
	paths, err := pathlist.Expand(ctx, j.Paths, j.Exclude, cfg.Walkers)
	if err != nil {
		slog.Warn("scheduled ingestion: expand paths", "job", name, "error", err)
		return
	}
	if _, _, err := mgr.Start(ctx, j.Profile, paths, "schedule:"+name); err != nil {
		slog.Warn("scheduled ingestion start", "job", name, "error", err)
	}
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
