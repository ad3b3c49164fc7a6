package common

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Config carries the knobs recognized by the pool and index constructors.
// Defaults come from the struct tags; node capacities left at zero make
// the tree use the page capacity. Validate only rejects bad values.
type Config struct {
	Environment string `envconfig:"RELDB_ENV" default:"dev"`
	DataDir     string `envconfig:"RELDB_DATA_DIR" default:"./data"`

	PoolSize  uint64 `envconfig:"RELDB_POOL_SIZE" default:"64"`
	ReplacerK uint64 `envconfig:"RELDB_REPLACER_K" default:"2"`

	LeafMaxSize     int `envconfig:"RELDB_LEAF_MAX_SIZE"`
	InternalMaxSize int `envconfig:"RELDB_INTERNAL_MAX_SIZE"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PoolSize == 0 {
		return fmt.Errorf("pool size must be greater than zero")
	}
	if c.ReplacerK == 0 {
		return fmt.Errorf("replacer k must be greater than zero")
	}
	if c.LeafMaxSize < 0 || c.InternalMaxSize < 0 {
		return fmt.Errorf("node capacities must be non-negative")
	}
	return nil
}
