// Package config loads the taskgate configuration: a JSONC file with
// environment templates, plus an optional .env file.
package config

import "time"

// Config is the root configuration for taskgate.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Events   EventsConfig   `json:"events"`
	Tasks    TasksConfig    `json:"tasks"`
	Batch    BatchConfig    `json:"batch"`
	Registry RegistryConfig `json:"registry"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// TasksConfig configures the long-running task subsystem.
type TasksConfig struct {
	// DefaultTimeout is applied to tasks started without an explicit
	// deadline. Zero disables the default deadline.
	DefaultTimeout Duration        `json:"default_timeout,omitempty"`
	Retention      RetentionConfig `json:"retention"`
}

// RetentionConfig controls eviction of terminal task records. Disabled by
// default: records live for the lifetime of the process.
type RetentionConfig struct {
	Enabled  bool     `json:"enabled"`
	MaxAge   Duration `json:"max_age,omitempty"`
	Schedule string   `json:"schedule,omitempty"` // cron expression
}

// BatchConfig configures the throttled batch executor defaults.
type BatchConfig struct {
	DefaultDelay Duration `json:"default_delay,omitempty"`
}

// RegistryConfig configures the user registry.
type RegistryConfig struct {
	SeedFile string `json:"seed_file,omitempty"` // YAML file of users loaded at startup
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
