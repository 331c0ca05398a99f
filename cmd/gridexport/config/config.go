// Package config loads the gridexport server configuration from the
// environment.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration.
type Config struct {
	Server Server `envPrefix:"GRIDEXPORT_"`
	Export Export `envPrefix:"GRIDEXPORT_"`
	Jobs   Jobs   `envPrefix:"GRIDEXPORT_JOB_"`
}

// Server holds listener settings.
type Server struct {
	Host            string        `env:"HOST"             envDefault:"127.0.0.1"`
	Port            int           `env:"PORT"             envDefault:"8080"`
	BasePath        string        `env:"BASE_PATH"        envDefault:"/exports"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Export holds grid, template and artifact locations.
type Export struct {
	GridDir        string `env:"GRID_DIR"         envDefault:"grids"`
	TemplateDir    string `env:"TEMPLATE_DIR"`
	ArtifactDir    string `env:"ARTIFACT_DIR"     envDefault:"artifacts"`
	Database       string `env:"DATABASE"         envDefault:"gridexport.db"`
	MaxRows        int    `env:"MAX_ROWS"`
	MaxBufferBytes int64  `env:"MAX_BUFFER_BYTES" envDefault:"8388608"`
}

// Jobs holds the background export queue settings.
type Jobs struct {
	Workers      int           `env:"WORKERS"       envDefault:"2"`
	QueueSize    int           `env:"QUEUE_SIZE"    envDefault:"64"`
	MaxRetries   int           `env:"MAX_RETRIES"   envDefault:"2"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"500ms"`
}

// Addr returns the listen address.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Defaults returns the configuration with every default applied.
func Defaults() Config {
	cfg, err := Load(map[string]string{})
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load parses the configuration from environ. A nil environ reads the
// process environment.
func Load(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("base path %q must start with /", c.Server.BasePath)
	}
	if c.Export.MaxRows < 0 {
		return fmt.Errorf("max rows must not be negative")
	}
	if c.Export.MaxBufferBytes <= 0 {
		return fmt.Errorf("max buffer bytes must be positive")
	}
	if c.Jobs.Workers <= 0 || c.Jobs.QueueSize <= 0 {
		return fmt.Errorf("job workers and queue size must be positive")
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("job retries must not be negative")
	}
	return nil
}
