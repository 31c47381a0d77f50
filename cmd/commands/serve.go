package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mjoubert/taskgate/internal/config"
	"github.com/mjoubert/taskgate/internal/events"
	"github.com/mjoubert/taskgate/internal/gateway"
	"github.com/mjoubert/taskgate/internal/heartbeat"
	"github.com/mjoubert/taskgate/internal/registry"
	"github.com/mjoubert/taskgate/internal/storage"
	"github.com/mjoubert/taskgate/internal/tasks"
	"github.com/mjoubert/taskgate/internal/tools"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the taskgate gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	// Setup debug logging
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := loadConfig(cmd)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// Persist events as JSONL, one file per day
	eventLog := storage.NewEventLogger(filepath.Join(config.TaskgatePath(), "events"), bus)
	defer eventLog.Close()

	// Task store + scheduler
	store := tasks.NewMemStore()
	sched := tasks.NewScheduler(tasks.SchedulerConfig{
		Store:          store,
		Bus:            bus,
		DefaultTimeout: cfg.Tasks.DefaultTimeout.Duration(),
	})
	defer sched.Stop()

	// Retention sweeper (nil when disabled)
	sweeper, err := tasks.NewSweeper(store, tasks.RetentionConfig{
		Enabled:  cfg.Tasks.Retention.Enabled,
		MaxAge:   cfg.Tasks.Retention.MaxAge.Duration(),
		Schedule: cfg.Tasks.Retention.Schedule,
	})
	if err != nil {
		return fmt.Errorf("init retention sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// User registry, optionally seeded from YAML
	users := registry.New(bus)
	if cfg.Registry.SeedFile != "" {
		n, err := users.LoadSeed(cfg.Registry.SeedFile)
		if err != nil {
			return fmt.Errorf("load registry seed: %w", err)
		}
		slog.Info("registry seeded", "users", n, "file", cfg.Registry.SeedFile)
	}

	// Tool registry
	toolReg := tools.NewRegistry(bus)
	if err := tools.RegisterUserTools(toolReg, users); err != nil {
		return fmt.Errorf("register user tools: %w", err)
	}
	if err := tools.RegisterTaskTools(toolReg, sched, cfg.Batch.DefaultDelay.Duration()); err != nil {
		return fmt.Errorf("register task tools: %w", err)
	}
	slog.Info("tools loaded", "count", len(toolReg.Names()))

	// Gateway server
	server := gateway.NewServer(bus, sched, users, toolReg, cfg.Gateway.Host, cfg.Gateway.Port)

	// Heartbeat file for the status command
	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	hb := heartbeat.NewWriter(filepath.Join(config.TaskgatePath(), "heartbeat.json"), addr, func() heartbeat.Stats {
		all, _ := store.List(tasks.ListFilter{})
		running, _ := store.List(tasks.ListFilter{Status: tasks.StatusRunning})
		return heartbeat.Stats{RunningTasks: len(running), TotalTasks: len(all)}
	})
	hb.Start()
	defer hb.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
