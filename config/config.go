package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Runtime configuration for the gateway process.
 * Endpoint and route declarations live in their own YAML files;
 * this only covers process-level knobs.
 */

type Config struct {
	Port          string `mapstructure:"PORT"`
	EndpointsFile string `mapstructure:"ENDPOINTS_FILE"`
	RoutesFile    string `mapstructure:"ROUTES_FILE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// DispatchWorkers bounds handler concurrency independently of
	// inbound request concurrency
	DispatchWorkers int `mapstructure:"DISPATCH_WORKERS"`

	// RetryQueueCap bounds the number of outstanding scheduled retries
	RetryQueueCap int `mapstructure:"RETRY_QUEUE_CAP"`

	// GuardTTLMinutes is how long idle per-key limiter state is kept
	GuardTTLMinutes int `mapstructure:"GUARD_TTL_MINUTES"`

	// TrustProxyHeaders makes the guard key on X-Forwarded-For instead
	// of the socket address. Only set this behind a proxy that strips
	// client-supplied forwarding headers; a directly exposed gateway
	// must leave it off or clients can rotate the header past the guard.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	Version string `mapstructure:"VERSION"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		// The .env file is optional, environment variables suffice
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	var config Config
	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// GetPort returns the HTTP listen port (default 8080)
func (c *Config) GetPort() string {
	if c.Port == "" {
		return "8080"
	}
	return c.Port
}

// GetEndpointsFile returns the endpoints YAML path (default endpoints.yaml)
func (c *Config) GetEndpointsFile() string {
	if c.EndpointsFile == "" {
		return "endpoints.yaml"
	}
	return c.EndpointsFile
}

// GetRoutesFile returns the routes YAML path (default routes.yaml)
func (c *Config) GetRoutesFile() string {
	if c.RoutesFile == "" {
		return "routes.yaml"
	}
	return c.RoutesFile
}

// GetDispatchWorkers returns the handler worker pool size (default 8)
func (c *Config) GetDispatchWorkers() int {
	if c.DispatchWorkers <= 0 {
		return 8
	}
	return c.DispatchWorkers
}

// GetRetryQueueCap returns the scheduled retry cap (default 1024)
func (c *Config) GetRetryQueueCap() int {
	if c.RetryQueueCap <= 0 {
		return 1024
	}
	return c.RetryQueueCap
}

// GetGuardTTL returns the idle limiter-state eviction TTL (default 30m)
func (c *Config) GetGuardTTL() time.Duration {
	if c.GuardTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.GuardTTLMinutes) * time.Minute
}

// GetVersion returns the build version identifier (default dev)
func (c *Config) GetVersion() string {
	if c.Version == "" {
		return "dev"
	}
	return c.Version
}
