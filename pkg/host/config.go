package host

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Config is the init payload for a Runtime, parsed from the JSON string
// the embedding shell passes to fae_core_init. The zero value (and "{}")
// is a valid default configuration.
type Config struct {
	// LogLevel filters slog output: debug, info, warn or error.
	// Empty means info.
	LogLevel string `json:"log_level,omitempty"`

	// EventBufferSize bounds the poll-event buffer. Zero (the default)
	// means unbounded lossless buffering; a positive value drops the
	// oldest event on overflow.
	EventBufferSize int `json:"event_buffer_size,omitempty"`

	// RequestCapacity is the command channel buffer size.
	// Zero means DefaultRequestCapacity.
	RequestCapacity int `json:"request_capacity,omitempty"`

	// DataDir is the directory for persistent backend state (scheduler
	// tasks, runtime config). Empty means fully in-memory.
	DataDir string `json:"data_dir,omitempty"`
}

func (c *Config) requestCapacity() int {
	if c.RequestCapacity > 0 {
		return c.RequestCapacity
	}
	return DefaultRequestCapacity
}

var configSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	s, err := jsonschema.For[Config](&jsonschema.ForOptions{})
	if err != nil {
		return nil, err
	}
	// Unknown keys are tolerated so older boundaries accept configs
	// written for newer backends.
	s.AdditionalProperties = nil
	return s.Resolve(nil)
})

// ParseConfig parses and validates an init config payload. An empty string
// is rejected; "{}" yields the default config. Returns ErrInvalidCommand
// wrapped errors for malformed JSON and schema violations.
func ParseConfig(configJSON string) (*Config, error) {
	if configJSON == "" {
		return nil, fmt.Errorf("host: config cannot be empty")
	}

	var doc any
	if err := json.Unmarshal([]byte(configJSON), &doc); err != nil {
		return nil, fmt.Errorf("host: parse config: %w", err)
	}

	schema, err := configSchema()
	if err != nil {
		return nil, fmt.Errorf("host: config schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("host: validate config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return nil, fmt.Errorf("host: parse config: %w", err)
	}
	if cfg.EventBufferSize < 0 {
		return nil, fmt.Errorf("host: event_buffer_size cannot be negative")
	}
	if cfg.RequestCapacity < 0 {
		return nil, fmt.Errorf("host: request_capacity cannot be negative")
	}
	return &cfg, nil
}
