package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/mjoubert/taskgate/internal/registry"
)

// NewUsersCommand returns the users subcommand.
func NewUsersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Inspect the user registry",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List registered users",
				Action: runUsersList,
			},
		},
		DefaultCommand: "list",
	}
}

func runUsersList(_ context.Context, cmd *cli.Command) error {
	var list []*registry.User
	if err := gatewayGet(cmd, "/api/users", &list); err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No users registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role)
	}
	return w.Flush()
}
