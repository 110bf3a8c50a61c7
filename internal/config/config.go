// Package config provides hierarchical configuration loading for Ceres.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Ceres core service.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Logging   Logging   `yaml:"logging"`
	Cache     Cache     `yaml:"cache"`
	Router    Router    `yaml:"router"`
	Executor  Executor  `yaml:"executor"`
	Engine    Engine    `yaml:"engine"`
	Breaker   Breaker   `yaml:"breaker"`
	Otel      Otel      `yaml:"otel"`
	Notify    Notify    `yaml:"notify"`
	Providers Providers `yaml:"providers"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN keeps
// persistence in memory.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// NATS holds the JetStream event publisher configuration. An empty URL
// disables NATS eventing.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Cache holds the bounded response cache configuration.
type Cache struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"` // freshness window checked against Entry.CachedAt
}

// Router holds routing table optimization configuration.
type Router struct {
	OptimizeMinInteractions int           `yaml:"optimize_min_interactions"` // total interactions before any optimization
	OptimizeMinUsage        int           `yaml:"optimize_min_usage"`        // per (category,provider) usage floor
	OptimizeCooldown        time.Duration `yaml:"optimize_cooldown"`         // minimum time between optimization passes
	OptimizeInterval        time.Duration `yaml:"optimize_interval"`         // background check cadence; <= 0 disables
}

// Executor holds fallback executor configuration. The short-response
// threshold is a crude proxy for "did the provider actually answer" and
// will misfire on legitimately short correct answers; it is a tunable,
// not a guaranteed-correct heuristic.
type Executor struct {
	CallTimeout        time.Duration `yaml:"call_timeout"`
	HistoryLimit       int           `yaml:"history_limit"`
	LowConfidenceChars int           `yaml:"low_confidence_chars"`
	PrimaryConfidence  float64       `yaml:"primary_confidence"`
	LowConfidence      float64       `yaml:"low_confidence"`
	UpgradeConfidence  float64       `yaml:"upgrade_confidence"`  // fallback success after a low-confidence upgrade
	FailureConfidence  float64       `yaml:"failure_confidence"`  // fallback success after an outright failure
	SentinelConfidence float64       `yaml:"sentinel_confidence"` // total failure, fallback sentinel
}

// Engine holds task engine configuration.
type Engine struct {
	MaxSteps       int `yaml:"max_steps"`       // automatic step budget per task
	ResultTruncate int `yaml:"result_truncate"` // chars of prior step results folded into context
}

// Breaker holds circuit breaker configuration for raw-HTTP providers.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Otel holds OpenTelemetry export configuration. An empty endpoint
// leaves spans and instruments on the default no-op providers.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
}

// Notify holds notification sink configuration.
type Notify struct {
	DiscordWebhook string `yaml:"discord_webhook"`
}

// Provider holds one provider family's closed option set.
type Provider struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	VoiceID     string  `yaml:"voice_id"`
}

// Providers holds the per-provider option structs.
type Providers struct {
	OpenAI     Provider `yaml:"openai"`
	Claude     Provider `yaml:"claude"`
	Gemini     Provider `yaml:"gemini"`
	ElevenLabs Provider `yaml:"elevenlabs"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "ceres-core",
		},
		Cache: Cache{
			MaxEntries: 500,
			TTL:        60 * time.Minute,
		},
		Router: Router{
			OptimizeMinInteractions: 50,
			OptimizeMinUsage:        5,
			OptimizeCooldown:        7 * 24 * time.Hour,
			OptimizeInterval:        time.Hour,
		},
		Executor: Executor{
			CallTimeout:        45 * time.Second,
			HistoryLimit:       1000,
			LowConfidenceChars: 20,
			PrimaryConfidence:  0.9,
			LowConfidence:      0.4,
			UpgradeConfidence:  0.85,
			FailureConfidence:  0.7,
			SentinelConfidence: 0.1,
		},
		Engine: Engine{
			MaxSteps:       20,
			ResultTruncate: 400,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
	}
}
