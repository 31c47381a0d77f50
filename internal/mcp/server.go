package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mjoubert/taskgate/internal/registry"
	"github.com/mjoubert/taskgate/internal/tools"
)

// NewMCPServer creates an MCP server exposing every tool in the registry,
// plus the users://list resource and the onboard_user prompt.
func NewMCPServer(reg *tools.Registry, users *registry.Registry) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "taskgate",
		Version: "0.1.0",
	}, nil)

	for _, name := range reg.Names() {
		spec := reg.Spec(name)
		if spec == nil {
			continue
		}

		mcpTool := toolSpecToMCPTool(spec)

		server.AddTool(mcpTool, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			inv := reg.Invoke(ctx, name, req.Params.Arguments)

			data, err := json.Marshal(inv)
			if err != nil {
				return &mcpsdk.CallToolResult{
					IsError: true,
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
				}, nil
			}
			return &mcpsdk.CallToolResult{
				IsError: inv.Status == tools.StatusError,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
			}, nil
		})

		slog.Debug("mcp tool registered", "tool", name)
	}

	addUserListResource(server, users)
	addOnboardPrompt(server)

	return server
}

// addUserListResource exposes the registry contents as a readable resource.
func addUserListResource(server *mcpsdk.Server, users *registry.Registry) {
	server.AddResource(&mcpsdk.Resource{
		URI:      "users://list",
		Name:     "user-list",
		MIMEType: "application/json",
	}, func(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
		data, err := json.MarshalIndent(users.List(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal user list: %w", err)
		}
		return &mcpsdk.ReadResourceResult{
			Contents: []*mcpsdk.ResourceContents{
				{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
			},
		}, nil
	})
}

// addOnboardPrompt registers the onboarding prompt template.
func addOnboardPrompt(server *mcpsdk.Server) {
	server.AddPrompt(&mcpsdk.Prompt{
		Name:        "onboard_user",
		Description: "Generate a welcoming message for a new user.",
		Arguments: []*mcpsdk.PromptArgument{
			{Name: "name", Description: "The name of the user to onboard", Required: true},
		},
	}, func(_ context.Context, req *mcpsdk.GetPromptRequest) (*mcpsdk.GetPromptResult, error) {
		name := req.Params.Arguments["name"]
		if name == "" {
			return nil, fmt.Errorf("onboard_user: name is required")
		}
		text := fmt.Sprintf("Welcome %s! We're excited to have you on board. "+
			"Please provide your email and role so we can set up your account.", name)
		return &mcpsdk.GetPromptResult{
			Messages: []*mcpsdk.PromptMessage{
				{Role: "user", Content: &mcpsdk.TextContent{Text: text}},
			},
		}, nil
	})
}
