package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/integra/internal/quadrature"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		// Level defaults to debug in development and info elsewhere.
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Quadrature struct {
		DefaultMethod     string `env:"QUAD_DEFAULT_METHOD" envDefault:"simpson"`
		DefaultRectangles int    `env:"QUAD_DEFAULT_RECTANGLES" envDefault:"100"`
		// MaxRectangles caps counts supplied by requests. Increments chosen
		// during a refinement are not capped. An estimate costs about n
		// interpreted evaluations of the formula and cannot be interrupted
		// once started, so the cap also bounds how long a request runs past
		// its deadline.
		MaxRectangles int           `env:"QUAD_MAX_RECTANGLES" envDefault:"1000000"`
		Workers       int           `env:"QUAD_WORKERS" envDefault:"4"`
		Seed          int64         `env:"QUAD_SEED" envDefault:"0"`
		SessionTTL    time.Duration `env:"QUAD_SESSION_TTL" envDefault:"30m"`
	}
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.defaultLevel()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration Load would produce with an empty
// environment.
func Default() *Config {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.defaultLevel()
	return cfg
}

func (c *Config) defaultLevel() {
	if c.Logging.Level != "" {
		return
	}
	c.Logging.Level = "info"
	if c.Environment == "development" {
		c.Logging.Level = "debug"
	}
}

// Validate checks the quadrature settings.
func (c *Config) Validate() error {
	if _, err := quadrature.ParseMethod(c.Quadrature.DefaultMethod); err != nil {
		return fmt.Errorf("QUAD_DEFAULT_METHOD: %w", err)
	}
	if c.Quadrature.DefaultRectangles < 1 {
		return fmt.Errorf("QUAD_DEFAULT_RECTANGLES must be positive, got %d", c.Quadrature.DefaultRectangles)
	}
	if c.Quadrature.MaxRectangles < c.Quadrature.DefaultRectangles {
		return fmt.Errorf("QUAD_MAX_RECTANGLES (%d) is below QUAD_DEFAULT_RECTANGLES (%d)",
			c.Quadrature.MaxRectangles, c.Quadrature.DefaultRectangles)
	}
	if c.Quadrature.Workers < 1 {
		return fmt.Errorf("QUAD_WORKERS must be positive, got %d", c.Quadrature.Workers)
	}
	if c.Quadrature.SessionTTL <= 0 {
		return fmt.Errorf("QUAD_SESSION_TTL must be positive, got %s", c.Quadrature.SessionTTL)
	}
	return nil
}

// DefaultMethod is the parsed QUAD_DEFAULT_METHOD. Validate must have passed.
func (c *Config) DefaultMethod() quadrature.Method {
	m, _ := quadrature.ParseMethod(c.Quadrature.DefaultMethod)
	return m
}
