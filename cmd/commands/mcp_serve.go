package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mjoubert/taskgate/internal/events"
	taskgatemcp "github.com/mjoubert/taskgate/internal/mcp"
	"github.com/mjoubert/taskgate/internal/registry"
	"github.com/mjoubert/taskgate/internal/tasks"
	"github.com/mjoubert/taskgate/internal/tools"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp-serve",
		Usage:  "Expose taskgate tools as an MCP server (stdio)",
		Action: runMCPServe,
	}
}

func runMCPServe(_ context.Context, cmd *cli.Command) error {
	// Setup logging to stderr (stdout is used for MCP stdio transport)
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	}

	cfg := loadConfig(cmd)

	ctx := context.Background()

	// Minimal event bus: nothing subscribes over stdio, but tools publish
	bus := events.NewBus(64)
	defer bus.Close()

	store := tasks.NewMemStore()
	sched := tasks.NewScheduler(tasks.SchedulerConfig{
		Store:          store,
		Bus:            bus,
		DefaultTimeout: cfg.Tasks.DefaultTimeout.Duration(),
	})
	defer sched.Stop()

	users := registry.New(bus)
	if cfg.Registry.SeedFile != "" {
		if _, err := users.LoadSeed(cfg.Registry.SeedFile); err != nil {
			return fmt.Errorf("load registry seed: %w", err)
		}
	}

	toolReg := tools.NewRegistry(bus)
	if err := tools.RegisterUserTools(toolReg, users); err != nil {
		return err
	}
	if err := tools.RegisterTaskTools(toolReg, sched, cfg.Batch.DefaultDelay.Duration()); err != nil {
		return err
	}

	slog.Debug("starting MCP server", "tools", len(toolReg.Names()))

	server := taskgatemcp.NewMCPServer(toolReg, users)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
