package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mjoubert/taskgate/internal/registry"
)

// RegisterUserTools wires the user registry CRUD surface into reg.
func RegisterUserTools(reg *Registry, users *registry.Registry) error {
	toolset := []*Tool{
		newCreateUserTool(users),
		newReadUserTool(users),
		newListUsersTool(users),
		newUpdateUserTool(users),
		newDeleteUserTool(users),
		newPingTool(),
	}
	for _, t := range toolset {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func newCreateUserTool(users *registry.Registry) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "create_user",
			Description: "Create a new user.",
			Parameters: map[string]ParamSpec{
				"name":  {Type: "string", Description: "Full name of the user", Required: true},
				"email": {Type: "string", Description: "Email address", Required: true},
				"role":  {Type: "string", Description: "Access role", Enum: []string{"user", "admin"}, Default: "user"},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in registry.CreateUserInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			return users.Create(in)
		},
	}
}

type userIDInput struct {
	UserID string `json:"user_id"`
}

func newReadUserTool(users *registry.Registry) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "read_user",
			Description: "Get details of a user by their ID.",
			Parameters: map[string]ParamSpec{
				"user_id": {Type: "string", Description: "The user ID to look up", Required: true},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in userIDInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if in.UserID == "" {
				return nil, fmt.Errorf("%w: user_id is required", registry.ErrInvalidInput)
			}
			return users.Get(in.UserID)
		},
	}
}

func newListUsersTool(users *registry.Registry) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "list_users",
			Description: "List all users in the registry with their id, name, email, and role.",
		},
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			return users.List(), nil
		},
	}
}

type updateUserInput struct {
	UserID string  `json:"user_id"`
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Role   *string `json:"role,omitempty"`
}

func newUpdateUserTool(users *registry.Registry) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "update_user",
			Description: "Update a user's details. Omitted fields are left unchanged.",
			Parameters: map[string]ParamSpec{
				"user_id": {Type: "string", Description: "The user ID to update", Required: true},
				"name":    {Type: "string", Description: "New full name"},
				"email":   {Type: "string", Description: "New email address"},
				"role":    {Type: "string", Description: "New access role", Enum: []string{"user", "admin"}},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in updateUserInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if in.UserID == "" {
				return nil, fmt.Errorf("%w: user_id is required", registry.ErrInvalidInput)
			}
			return users.Update(in.UserID, registry.UpdateUserInput{
				Name:  in.Name,
				Email: in.Email,
				Role:  in.Role,
			})
		},
	}
}

func newDeleteUserTool(users *registry.Registry) *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "delete_user",
			Description: "Delete a user by their ID.",
			Parameters: map[string]ParamSpec{
				"user_id": {Type: "string", Description: "The user ID to delete", Required: true},
			},
		},
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var in userIDInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", registry.ErrInvalidInput, err)
			}
			if in.UserID == "" {
				return nil, fmt.Errorf("%w: user_id is required", registry.ErrInvalidInput)
			}
			if err := users.Delete(in.UserID); err != nil {
				return nil, err
			}
			return map[string]string{"deleted": in.UserID}, nil
		},
	}
}

func newPingTool() *Tool {
	return &Tool{
		Spec: ToolSpec{
			Name:        "ping",
			Description: "Check if the server is running.",
		},
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			return "pong", nil
		},
	}
}
