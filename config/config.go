// Package config loads the settings of the rxcall client and CLI with viper.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"rxcall/codec"
	"rxcall/loadbalance"
	"rxcall/scheduler"
)

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// Options returns every configuration key with its default and meaning.
func Options() []ConfigOption {
	return []ConfigOption{
		// Endpoint
		{Key: "base_url", Default: "", Comment: "Fixed base URL; leave empty to discover instances of service"},
		{Key: "service", Default: "", Comment: "Service name looked up in the registry"},
		{Key: "registry.kind", Default: "static", Comment: "static or etcd"},
		{Key: "registry.endpoints", Default: []string{}, Comment: "etcd endpoints, or the instance addresses of a static registry"},
		{Key: "balancer", Default: "round_robin", Comment: "round_robin, weighted_random or consistent_hash"},

		// Stream shape
		{Key: "async", Default: false, Comment: "Run calls asynchronously instead of on the subscribing goroutine"},
		{Key: "graphql", Default: false, Comment: "Unwrap the data envelope of GraphQL replies"},
		{Key: "scheduler.kind", Default: "none", Comment: "none, immediate, goroutine, single or pool"},
		{Key: "scheduler.workers", Default: 4, Comment: "Concurrency of the pool scheduler"},

		// Round trip
		{Key: "timeout", Default: 30 * time.Second, Comment: "Per round trip timeout; 0 disables it"},
		{Key: "rate_limit.rps", Default: 0.0, Comment: "Round trips per second; 0 disables limiting"},
		{Key: "rate_limit.burst", Default: 1, Comment: "Burst allowed by the rate limiter"},
		{Key: "codec", Default: "json", Comment: "Body codec: json or proto"},

		{Key: "log.level", Default: "info", Comment: "debug, info, warn or error"},
		{Key: "log.dev", Default: false, Comment: "Human readable development logging"},
	}
}

func applyDefaults(v *viper.Viper) {
	for _, o := range Options() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < env.
// A config file set with v.SetConfigFile must exist; otherwise rxcall.{yaml,toml,json}
// is looked up in the usual places and may be missing.
func Load(ctx context.Context, v *viper.Viper) error {
	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("rxcall")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "rxcall"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "rxcall"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("config: read: %w", err)
		}
	}

	// RXCALL_REGISTRY_ENDPOINTS etc.
	v.SetEnvPrefix("rxcall")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow a comma separated env override for the endpoint list
	if s := os.Getenv("RXCALL_REGISTRY_ENDPOINTS"); s != "" {
		v.Set("registry.endpoints", splitList(s))
	}
	return ctx.Err()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type Registry struct {
	Kind      string
	Endpoints []string
}

type RateLimit struct {
	RPS   float64
	Burst int
}

type Log struct {
	Level string
	Dev   bool
}

type Config struct {
	BaseURL  string
	Service  string
	Registry Registry
	Balancer string

	Async            bool
	GraphQL          bool
	Scheduler        string
	SchedulerWorkers int

	Timeout   time.Duration
	RateLimit RateLimit
	Codec     string
	Log       Log
}

// FromViper reads the resolved values out of v.
func FromViper(v *viper.Viper) Config {
	return Config{
		BaseURL: v.GetString("base_url"),
		Service: v.GetString("service"),
		Registry: Registry{
			Kind:      v.GetString("registry.kind"),
			Endpoints: v.GetStringSlice("registry.endpoints"),
		},
		Balancer:         v.GetString("balancer"),
		Async:            v.GetBool("async"),
		GraphQL:          v.GetBool("graphql"),
		Scheduler:        v.GetString("scheduler.kind"),
		SchedulerWorkers: v.GetInt("scheduler.workers"),
		Timeout:          v.GetDuration("timeout"),
		RateLimit: RateLimit{
			RPS:   v.GetFloat64("rate_limit.rps"),
			Burst: v.GetInt("rate_limit.burst"),
		},
		Codec: v.GetString("codec"),
		Log: Log{
			Level: v.GetString("log.level"),
			Dev:   v.GetBool("log.dev"),
		},
	}
}

// SchedulerName renders the scheduler setting in the form scheduler.Parse
// accepts.
func (c Config) SchedulerName() string {
	if strings.EqualFold(strings.TrimSpace(c.Scheduler), "pool") {
		return fmt.Sprintf("pool:%d", c.SchedulerWorkers)
	}
	return c.Scheduler
}

// CheckConfigValidity reports every invalid setting of v at once.
func CheckConfigValidity(v *viper.Viper) error {
	c := FromViper(v)
	var errs error

	if c.BaseURL == "" && c.Service == "" {
		errs = multierr.Append(errs, errors.New("base_url or service is required"))
	}
	if c.BaseURL == "" && c.Service != "" {
		switch c.Registry.Kind {
		case "static", "etcd":
			if len(c.Registry.Endpoints) == 0 {
				errs = multierr.Append(errs, fmt.Errorf("registry.endpoints is required for a %s registry", c.Registry.Kind))
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("registry.kind %q is not static or etcd", c.Registry.Kind))
		}
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, closeFn, err := scheduler.Parse(c.SchedulerName()); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		closeFn()
	}
	if _, err := codec.ParseType(c.Codec); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Timeout < 0 {
		errs = multierr.Append(errs, errors.New("timeout must not be negative"))
	}
	if c.RateLimit.RPS < 0 {
		errs = multierr.Append(errs, errors.New("rate_limit.rps must not be negative"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		errs = multierr.Append(errs, errors.New("rate_limit.burst must be greater than 0"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errs
}
