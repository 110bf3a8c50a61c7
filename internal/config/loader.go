package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ceres.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CERES_PORT")
	setString(&cfg.Server.CORSOrigin, "CERES_CORS_ORIGIN")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CERES_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CERES_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CERES_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CERES_PG_MAX_CONN_IDLE_TIME")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Logging.Level, "CERES_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CERES_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CERES_LOG_ASYNC")

	setInt(&cfg.Cache.MaxEntries, "CERES_CACHE_MAX_ENTRIES")
	setDuration(&cfg.Cache.TTL, "CERES_CACHE_TTL")

	setInt(&cfg.Router.OptimizeMinInteractions, "CERES_ROUTER_OPTIMIZE_MIN_INTERACTIONS")
	setInt(&cfg.Router.OptimizeMinUsage, "CERES_ROUTER_OPTIMIZE_MIN_USAGE")
	setDuration(&cfg.Router.OptimizeCooldown, "CERES_ROUTER_OPTIMIZE_COOLDOWN")
	setDuration(&cfg.Router.OptimizeInterval, "CERES_ROUTER_OPTIMIZE_INTERVAL")

	setDuration(&cfg.Executor.CallTimeout, "CERES_EXEC_CALL_TIMEOUT")
	setInt(&cfg.Executor.HistoryLimit, "CERES_EXEC_HISTORY_LIMIT")
	setInt(&cfg.Executor.LowConfidenceChars, "CERES_EXEC_LOW_CONFIDENCE_CHARS")

	setInt(&cfg.Engine.MaxSteps, "CERES_ENGINE_MAX_STEPS")
	setInt(&cfg.Engine.ResultTruncate, "CERES_ENGINE_RESULT_TRUNCATE")

	setInt(&cfg.Breaker.MaxFailures, "CERES_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CERES_BREAKER_TIMEOUT")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setString(&cfg.Notify.DiscordWebhook, "CERES_DISCORD_WEBHOOK")

	setString(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Providers.OpenAI.Model, "CERES_OPENAI_MODEL")
	setString(&cfg.Providers.Claude.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Providers.Claude.Model, "CERES_CLAUDE_MODEL")
	setString(&cfg.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Providers.Gemini.BaseURL, "CERES_GEMINI_BASE_URL")
	setString(&cfg.Providers.Gemini.Model, "CERES_GEMINI_MODEL")
	setString(&cfg.Providers.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	setString(&cfg.Providers.ElevenLabs.VoiceID, "CERES_ELEVENLABS_VOICE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Cache.MaxEntries < 1 {
		return errors.New("cache.max_entries must be >= 1")
	}
	if cfg.Executor.HistoryLimit < 1 {
		return errors.New("executor.history_limit must be >= 1")
	}
	if cfg.Engine.MaxSteps < 1 {
		return errors.New("engine.max_steps must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
