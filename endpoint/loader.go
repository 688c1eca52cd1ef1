package endpoint

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

/* Loader manages endpoint configuration from endpoints.yaml
 * Provides in-memory lookup for fast access on the hot path
 */

// Config represents the structure of endpoints.yaml
type Config struct {
	Endpoints []EndpointConfig `yaml:"endpoints" validate:"required,min=1,dive"`
}

// EndpointConfig represents a single endpoint in the YAML file
type EndpointConfig struct {
	ID               string            `yaml:"id" validate:"required"`
	Path             string            `yaml:"path" validate:"required,startswith=/"`
	Provider         string            `yaml:"provider" validate:"required"`
	Secret           string            `yaml:"secret"`
	Format           string            `yaml:"format" validate:"omitempty,oneof=json xml form"`
	Dispatch         string            `yaml:"dispatch" validate:"omitempty,oneof=sync async"`
	Enabled          *bool             `yaml:"enabled"` // defaults to true when omitted
	SkipVerification bool              `yaml:"skip_verification"`
	AllowedOrigins   []string          `yaml:"allowed_origins"`
	Metadata         map[string]string `yaml:"metadata"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig represents per-endpoint abuse thresholds in YAML
type RateLimitConfig struct {
	PerMinute     int   `yaml:"per_minute" validate:"gte=0"`
	PerHour       int   `yaml:"per_hour" validate:"gte=0"`
	Burst         int   `yaml:"burst" validate:"gte=0"`
	BurstWindowMS int   `yaml:"burst_window_ms" validate:"gte=0"`
	BlockSeconds  int   `yaml:"block_seconds" validate:"gte=0"`
	MaxBodyBytes  int64 `yaml:"max_body_bytes" validate:"gte=0"`
}

// Registry holds the loaded endpoints, indexed by ID and by path.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Endpoint
	byPath map[string]*Endpoint
}

// NewRegistry creates an empty endpoint registry
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Endpoint),
		byPath: make(map[string]*Endpoint),
	}
}

// Load reads and parses the endpoints YAML file
func (r *Registry) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading endpoints file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing endpoints YAML: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("validating endpoints config: %w", err)
	}

	for _, ec := range config.Endpoints {
		ep, err := fromConfig(ec)
		if err != nil {
			return fmt.Errorf("building endpoint: %w", err)
		}
		if err := r.Register(ep); err != nil {
			return err
		}
	}

	return nil
}

// fromConfig converts a YAML entry into an Endpoint with defaults applied
func fromConfig(ec EndpointConfig) (*Endpoint, error) {
	rl := RateLimitPolicy{
		PerMinute:     ec.RateLimit.PerMinute,
		PerHour:       ec.RateLimit.PerHour,
		Burst:         ec.RateLimit.Burst,
		BurstWindowMS: ec.RateLimit.BurstWindowMS,
		BlockSeconds:  ec.RateLimit.BlockSeconds,
		MaxBodyBytes:  ec.RateLimit.MaxBodyBytes,
	}
	if rl.PerMinute == 0 {
		rl.PerMinute = 120
	}
	if rl.PerHour == 0 {
		rl.PerHour = 3600
	}
	if rl.Burst == 0 {
		rl.Burst = 20
	}
	if rl.BurstWindowMS == 0 {
		rl.BurstWindowMS = 2000
	}
	if rl.BlockSeconds == 0 {
		rl.BlockSeconds = 60
	}
	if rl.MaxBodyBytes == 0 {
		rl.MaxBodyBytes = 1 << 20 // 1 MB
	}

	ep := &Endpoint{
		ID:               ec.ID,
		Path:             ec.Path,
		Provider:         ec.Provider,
		Secret:           []byte(ec.Secret),
		Format:           NewFormat(ec.Format),
		Dispatch:         NewDispatchMode(ec.Dispatch),
		RateLimit:        rl,
		AllowedOrigins:   ec.AllowedOrigins,
		Metadata:         ec.Metadata,
		SkipVerification: ec.SkipVerification,
	}
	enabled := true
	if ec.Enabled != nil {
		enabled = *ec.Enabled
	}
	ep.SetEnabled(enabled)

	if err := ep.Validate(); err != nil {
		return nil, err
	}
	return ep, nil
}

// Register adds an endpoint to the registry
func (r *Registry) Register(ep *Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[ep.ID]; exists {
		return fmt.Errorf("duplicate endpoint id: %s", ep.ID)
	}
	if _, exists := r.byPath[ep.Path]; exists {
		return fmt.Errorf("duplicate endpoint path: %s", ep.Path)
	}
	r.byID[ep.ID] = ep
	r.byPath[ep.Path] = ep
	return nil
}

// Get retrieves an endpoint by its ID
func (r *Registry) Get(id string) (*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("endpoint not found: %s", id)
	}
	return ep, nil
}

// GetByPath retrieves an endpoint by its URL path
func (r *Registry) GetByPath(path string) (*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, exists := r.byPath[path]
	if !exists {
		return nil, fmt.Errorf("no endpoint registered at path: %s", path)
	}
	return ep, nil
}

// List returns all registered endpoints
func (r *Registry) List() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoints := make([]*Endpoint, 0, len(r.byID))
	for _, ep := range r.byID {
		endpoints = append(endpoints, ep)
	}
	return endpoints
}

// Exists checks if an endpoint ID is registered
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.byID[id]
	return exists
}
