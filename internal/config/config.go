// Package config loads jobtrail settings from defaults, an optional YAML
// file and the environment, in that order, and validates the result
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc []byte

// Config holds all runtime settings.
type Config struct {
	Server        Server   `json:"server" yaml:"server"`
	WebhookSecret string   `json:"webhookSecret" yaml:"webhookSecret"`
	Database      Database `json:"database" yaml:"database"`
	RedisURL      string   `json:"redisUrl" yaml:"redisUrl"`
	Log           Log      `json:"log" yaml:"log"`
	Match         Match    `json:"match" yaml:"match"`
	Audit         Audit    `json:"audit" yaml:"audit"`
}

// Server configures the webhook listener.
type Server struct {
	Addr           string        `json:"addr" yaml:"addr"`
	ReadTimeout    time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"`
	RateLimit      float64       `json:"rateLimit" yaml:"rateLimit"` // requests per second per client IP; 0 disables
	RateBurst      int           `json:"rateBurst" yaml:"rateBurst"`
}

// Database locates the ledger and the job aggregate.
type Database struct {
	LedgerPath string `json:"ledgerPath" yaml:"ledgerPath"`
	// JobsURL is a Postgres DSN for the external job database. Empty means
	// jobs are read from the ledger's local mirror tables.
	JobsURL string `json:"jobsUrl" yaml:"jobsUrl"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Match configures the match engine.
type Match struct {
	WindowDays int `json:"windowDays" yaml:"windowDays"`
}

// Audit configures batch validation.
type Audit struct {
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Window returns the PO search window.
func (m Match) Window() time.Duration {
	return time.Duration(m.WindowDays) * 24 * time.Hour
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   15 * time.Second,
			RequestTimeout: 10 * time.Second,
			RateLimit:      20,
			RateBurst:      40,
		},
		Database: Database{LedgerPath: "jobtrail.db"},
		Log:      Log{Level: "info", Format: "text"},
		Match:    Match{WindowDays: 30},
		Audit:    Audit{Concurrency: 4},
	}
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables. PORT, DATABASE_URL and REDIS_URL
// are honoured for platform compatibility; JOBTRAIL_* wins when both are set.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		cfg.Database.JobsURL = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		cfg.RedisURL = v
	}

	strs := map[string]*string{
		"JOBTRAIL_ADDR":           &cfg.Server.Addr,
		"JOBTRAIL_WEBHOOK_SECRET": &cfg.WebhookSecret,
		"JOBTRAIL_LEDGER_PATH":    &cfg.Database.LedgerPath,
		"JOBTRAIL_JOBS_URL":       &cfg.Database.JobsURL,
		"JOBTRAIL_REDIS_URL":      &cfg.RedisURL,
		"JOBTRAIL_LOG_LEVEL":      &cfg.Log.Level,
		"JOBTRAIL_LOG_FORMAT":     &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	durations := map[string]*time.Duration{
		"JOBTRAIL_READ_TIMEOUT":    &cfg.Server.ReadTimeout,
		"JOBTRAIL_WRITE_TIMEOUT":   &cfg.Server.WriteTimeout,
		"JOBTRAIL_REQUEST_TIMEOUT": &cfg.Server.RequestTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"JOBTRAIL_RATE_BURST":        &cfg.Server.RateBurst,
		"JOBTRAIL_MATCH_WINDOW_DAYS": &cfg.Match.WindowDays,
		"JOBTRAIL_AUDIT_CONCURRENCY": &cfg.Audit.Concurrency,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup("JOBTRAIL_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("JOBTRAIL_RATE_LIMIT: %w", err)
		}
		cfg.Server.RateLimit = f
	}
	return nil
}

// Validate checks cfg against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSrc).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// SecretConfigured reports whether webhook auth can succeed.
func (c *Config) SecretConfigured() bool {
	return c.WebhookSecret != ""
}
