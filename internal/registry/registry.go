package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mjoubert/taskgate/internal/events"
)

var (
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidInput wraps validator failures on create/update input.
	ErrInvalidInput = errors.New("invalid user input")
)

// Registry is a concurrency-safe in-memory user store.
type Registry struct {
	mu       sync.RWMutex
	users    map[string]*User
	validate *validator.Validate
	bus      *events.Bus
}

// New creates an empty Registry. bus may be nil.
func New(bus *events.Bus) *Registry {
	return &Registry{
		users:    make(map[string]*User),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		bus:      bus,
	}
}

// Create validates input and adds a new user.
func (r *Registry) Create(in CreateUserInput) (*User, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	role := Role(in.Role)
	if role == "" {
		role = RoleUser
	}

	now := time.Now()
	u := &User{
		ID:        GenerateUserID(),
		Name:      in.Name,
		Email:     in.Email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()

	r.publish("created", u)
	out := *u
	return &out, nil
}

// Get returns a copy of the user with the given id.
func (r *Registry) Get(id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	out := *u
	return &out, nil
}

// List returns all users sorted by creation time.
func (r *Registry) List() []*User {
	r.mu.RLock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		c := *u
		out = append(out, &c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update validates input and applies the non-nil fields.
func (r *Registry) Update(id string, in UpdateUserInput) (*User, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	r.mu.Lock()
	u, ok := r.users[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Role != nil {
		u.Role = Role(*in.Role)
	}
	u.UpdatedAt = time.Now()
	out := *u
	r.mu.Unlock()

	r.publish("updated", &out)
	return &out, nil
}

// Delete removes a user.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	u, ok := r.users[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	delete(r.users, id)
	r.mu.Unlock()

	r.publish("deleted", u)
	return nil
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func (r *Registry) publish(action string, u *User) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.NewTypedEvent(events.SourceRegistry, events.UserChangedPayload{
		Action: action,
		UserID: u.ID,
		Name:   u.Name,
	}))
}
