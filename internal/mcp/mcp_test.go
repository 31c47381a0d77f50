package mcp

import (
	"encoding/json"
	"testing"

	"github.com/mjoubert/taskgate/internal/events"
	"github.com/mjoubert/taskgate/internal/registry"
	"github.com/mjoubert/taskgate/internal/tools"
)

func TestToolSpecToMCPTool(t *testing.T) {
	spec := &tools.ToolSpec{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: map[string]tools.ParamSpec{
			"name": {
				Type:        "string",
				Description: "The name",
				Required:    true,
			},
			"count": {
				Type:        "integer",
				Description: "A count",
				Required:    false,
			},
			"mode": {
				Type:        "string",
				Description: "The mode",
				Required:    true,
				Enum:        []string{"fast", "slow"},
			},
		},
	}

	mcpTool := toolSpecToMCPTool(spec)

	if mcpTool.Name != "test_tool" {
		t.Errorf("Name = %q, want %q", mcpTool.Name, "test_tool")
	}
	if mcpTool.Description != "A test tool" {
		t.Errorf("Description = %q, want %q", mcpTool.Description, "A test tool")
	}

	// Verify InputSchema is a proper JSON Schema object
	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal InputSchema: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}

	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want %q", schema["type"], "object")
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema properties not a map")
	}
	if len(props) != 3 {
		t.Errorf("schema properties len = %d, want 3", len(props))
	}

	req, ok := schema["required"].([]any)
	if !ok {
		t.Fatal("schema required not an array")
	}
	if len(req) != 2 {
		t.Fatalf("schema required len = %d, want 2", len(req))
	}
	// Sorted: mode, name
	if req[0] != "mode" || req[1] != "name" {
		t.Errorf("schema required = %v, want [mode, name]", req)
	}
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	users := registry.New(bus)
	reg := tools.NewRegistry(bus)
	if err := tools.RegisterUserTools(reg, users); err != nil {
		t.Fatalf("RegisterUserTools: %v", err)
	}

	server := NewMCPServer(reg, users)
	if server == nil {
		t.Fatal("expected non-nil server")
	}
}
