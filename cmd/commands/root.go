package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/mjoubert/taskgate/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "taskgate",
		Usage: "Long-running task gateway with polling, batching and MCP tools",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewMCPServeCommand(),
			NewStatusCommand(),
			NewTasksCommand(),
			NewUsersCommand(),
		},
	}
}

// loadConfig loads the config file named by the --config flag, falling
// back to defaults when the file does not exist.
func loadConfig(cmd *cli.Command) *config.Config {
	return config.LoadOrDefault(cmd.String("config"))
}
