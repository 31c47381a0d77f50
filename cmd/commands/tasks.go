package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mjoubert/taskgate/internal/tasks"
)

// NewTasksCommand returns the tasks subcommand. The task store lives in
// the gateway process, so all subcommands go through its HTTP API.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Manage long-running tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status (pending, running, completed, failed, timed_out)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all tasks",
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a task",
				ArgsUsage: "<task_id>",
				Action:    runTasksCancel,
			},
		},
		DefaultCommand: "list",
	}
}

// gatewayURL builds the gateway base URL from config.
func gatewayURL(cmd *cli.Command) string {
	cfg := loadConfig(cmd)
	return fmt.Sprintf("http://%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
}

func gatewayGet(cmd *cli.Command, path string, out any) error {
	resp, err := http.Get(gatewayURL(cmd) + path)
	if err != nil {
		return fmt.Errorf("gateway unreachable, is it running? (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runTasksList(_ context.Context, cmd *cli.Command) error {
	path := "/api/tasks"
	if status := cmd.String("status"); status != "" {
		path += "?status=" + status
	}

	var list []*tasks.Task
	if err := gatewayGet(cmd, path, &list); err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTEP\tTITLE")
	for _, t := range list {
		step := "-"
		if cp := t.LatestCheckpoint(); cp != nil {
			step = fmt.Sprintf("%d", cp.Step)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			t.ID,
			t.Status,
			step,
			t.Title,
		)
	}
	return w.Flush()
}

func runTasksShow(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: taskgate tasks show <task_id>")
	}

	var t tasks.Task
	if err := gatewayGet(cmd, "/api/tasks/"+taskID, &t); err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("ID:          %s\n", t.ID)
	fmt.Printf("Title:       %s\n", t.Title)
	fmt.Printf("Status:      %s\n", t.Status)
	fmt.Printf("Created:     %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		fmt.Printf("Started:     %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.Deadline != nil {
		fmt.Printf("Deadline:    %s\n", t.Deadline.Format("2006-01-02 15:04:05"))
	}

	if len(t.Checkpoints) > 0 {
		fmt.Println("\nCheckpoints:")
		for _, cp := range t.Checkpoints {
			fmt.Printf("  [%s] step %d: %s\n", cp.Ts.Format("15:04:05"), cp.Step, string(cp.Payload))
		}
	}

	if t.Error != nil {
		fmt.Printf("\nError: [%s] %s\n", t.Error.Kind, t.Error.Message)
	}
	if len(t.Result) > 0 {
		fmt.Printf("\nResult:\n%s\n", string(t.Result))
	}

	return nil
}

func runTasksCancel(_ context.Context, cmd *cli.Command) error {
	taskID := cmd.Args().First()
	if taskID == "" {
		return fmt.Errorf("usage: taskgate tasks cancel <task_id>")
	}

	body, _ := json.Marshal(map[string]string{"reason": "cancelled from CLI"})
	url := gatewayURL(cmd) + "/api/tasks/" + taskID + "/cancel"

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable, is it running? (%w)", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Printf("Task %s cancelled.\n", taskID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("task %s not found", taskID)
	case http.StatusConflict:
		fmt.Printf("Task %s is already terminal.\n", taskID)
		return nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel task: gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
}
