package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config holds process settings read from the environment.
type Config struct {
	Port         string
	StoreBackend string
	DatabaseURL  string
	DynamoTable  string
	RepliesFile  string
	CORSOrigins  []string

	// RandomSeed fixes the reply picker when HasRandomSeed is set.
	RandomSeed    int64
	HasRandomSeed bool
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         envOr("PORT", "3001"),
		StoreBackend: strings.ToLower(envOr("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DynamoTable:  strings.TrimSpace(os.Getenv("DYNAMODB_TABLE")),
		RepliesFile:  strings.TrimSpace(os.Getenv("REPLIES_FILE")),
		CORSOrigins:  splitList(envOr("CORS_ORIGINS", "*")),
	}

	if v := strings.TrimSpace(os.Getenv("RANDOM_SEED")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: RANDOM_SEED: %w", err)
		}
		cfg.RandomSeed = seed
		cfg.HasRandomSeed = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: PORT cannot be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("config: PORT %q is not a number", c.Port)
	}
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is not set")
		}
	case BackendDynamoDB:
		if c.DynamoTable == "" {
			return fmt.Errorf("config: DYNAMODB_TABLE is not set")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("config: CORS_ORIGINS cannot be empty")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
