package router

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

/* Loader reads route declarations from routes.yaml into a Registry */

// Config represents the structure of routes.yaml
type Config struct {
	Routes []RouteConfig `yaml:"routes" validate:"required,min=1,dive"`
}

// RouteConfig represents a single route in the YAML file
type RouteConfig struct {
	Name       string         `yaml:"name" validate:"required"`
	EventTypes []string       `yaml:"event_types"`
	Sources    []string       `yaml:"sources"`
	Filters    []FilterConfig `yaml:"filters" validate:"dive"`
	Handler    string         `yaml:"handler" validate:"required"`
	Priority   string         `yaml:"priority" validate:"omitempty,oneof=critical high normal low"`
	MaxRetries int            `yaml:"max_retries" validate:"gte=0"`
	TimeoutMS  int            `yaml:"timeout_ms" validate:"gte=0"`
	Enabled    *bool          `yaml:"enabled"` // defaults to true when omitted
}

// FilterConfig represents a filter predicate in the YAML file
type FilterConfig struct {
	Path        string `yaml:"path" validate:"required"`
	Op          string `yaml:"op" validate:"required"`
	Value       any    `yaml:"value"`
	Description string `yaml:"description"`
}

// Load reads and parses a routes YAML file into the registry
func Load(r *Registry, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading routes file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing routes YAML: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("validating routes config: %w", err)
	}

	for _, rc := range config.Routes {
		route := fromConfig(rc)
		if err := r.Register(route); err != nil {
			return err
		}
	}
	return nil
}

// fromConfig converts a YAML entry into a Route with defaults applied
func fromConfig(rc RouteConfig) *Route {
	timeout := time.Duration(rc.TimeoutMS) * time.Millisecond
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	filters := make([]Filter, len(rc.Filters))
	for i, fc := range rc.Filters {
		filters[i] = Filter{
			Path:        fc.Path,
			Op:          Operator(fc.Op),
			Value:       fc.Value,
			Description: fc.Description,
		}
	}

	route := &Route{
		Name:       rc.Name,
		EventTypes: rc.EventTypes,
		Sources:    rc.Sources,
		Filters:    filters,
		HandlerRef: rc.Handler,
		Priority:   NewPriority(rc.Priority),
		MaxRetries: rc.MaxRetries,
		Timeout:    timeout,
	}
	enabled := true
	if rc.Enabled != nil {
		enabled = *rc.Enabled
	}
	route.SetEnabled(enabled)
	return route
}
