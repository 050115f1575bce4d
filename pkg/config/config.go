// Package config holds the simulator settings and their sources: built-in
// defaults, .env files and MEMSIM_* environment variables. Command line flags
// are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mtrqq/memsim/pkg/display"
	"github.com/mtrqq/memsim/pkg/policy"
	"github.com/mtrqq/memsim/pkg/process"
)

const EnvPrefix = "MEMSIM_"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Memory       int
	Policy       string
	Workload     string
	Demo         bool
	Readmit      bool
	MaxTicks     int
	Verify       bool
	Format       string
	TraceDB      string
	LogLevel     string
	LogJSON      bool
	MaxProcesses int
}

func Default() Config {
	return Config{
		Policy:       policy.InputOrder{}.Name(),
		Format:       "text",
		LogLevel:     zerolog.LevelWarnValue,
		MaxProcesses: process.DefaultMaxProcesses,
	}
}

type binding struct {
	flag string
	set  func(c *Config, value string) error
}

func intSetter(field func(c *Config) *int) func(c *Config, value string) error {
	return func(c *Config, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(c) = v
		return nil
	}
}

func boolSetter(field func(c *Config) *bool) func(c *Config, value string) error {
	return func(c *Config, value string) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*field(c) = v
		return nil
	}
}

func stringSetter(field func(c *Config) *string) func(c *Config, value string) error {
	return func(c *Config, value string) error {
		*field(c) = value
		return nil
	}
}

var bindings = []binding{
	{"memory", intSetter(func(c *Config) *int { return &c.Memory })},
	{"policy", stringSetter(func(c *Config) *string { return &c.Policy })},
	{"workload", stringSetter(func(c *Config) *string { return &c.Workload })},
	{"demo", boolSetter(func(c *Config) *bool { return &c.Demo })},
	{"readmit", boolSetter(func(c *Config) *bool { return &c.Readmit })},
	{"max-ticks", intSetter(func(c *Config) *int { return &c.MaxTicks })},
	{"verify", boolSetter(func(c *Config) *bool { return &c.Verify })},
	{"format", stringSetter(func(c *Config) *string { return &c.Format })},
	{"trace-db", stringSetter(func(c *Config) *string { return &c.TraceDB })},
	{"log-level", stringSetter(func(c *Config) *string { return &c.LogLevel })},
	{"log-json", boolSetter(func(c *Config) *bool { return &c.LogJSON })},
	{"max-processes", intSetter(func(c *Config) *int { return &c.MaxProcesses })},
}

// EnvKey maps a flag name to its environment variable, "max-ticks" becomes
// MEMSIM_MAX_TICKS.
func EnvKey(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// ReadEnv collects MEMSIM_* settings from the given .env files, missing files
// are skipped, and from the process environment, which wins over files.
func ReadEnv(files ...string) (map[string]string, error) {
	env := make(map[string]string)
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}

		values, err := godotenv.Read(file)
		if err != nil {
			return nil, fmt.Errorf("%w: env file %s: %w", ErrInvalidConfig, file, err)
		}

		for k, v := range values {
			if strings.HasPrefix(k, EnvPrefix) {
				env[k] = v
			}
		}
	}

	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}

	return env, nil
}

// ApplyEnv overrides settings from env. Settings whose flag was set
// explicitly, as reported by changed, are left alone.
func (c *Config) ApplyEnv(env map[string]string, changed func(flag string) bool) error {
	for _, b := range bindings {
		if changed != nil && changed(b.flag) {
			continue
		}

		key := EnvKey(b.flag)
		value, ok := env[key]
		if !ok {
			continue
		}

		if err := b.set(c, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, value, err)
		}
	}

	return nil
}

func (c Config) Validate() error {
	if c.Memory < 0 {
		return fmt.Errorf("%w: memory must not be negative, got %d", ErrInvalidConfig, c.Memory)
	}

	if c.MaxTicks < 0 {
		return fmt.Errorf("%w: max ticks must not be negative, got %d", ErrInvalidConfig, c.MaxTicks)
	}

	if c.Demo && c.Workload != "" {
		return fmt.Errorf("%w: demo and workload file are mutually exclusive", ErrInvalidConfig)
	}

	if _, err := policy.ByName(c.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !slices.Contains(display.Formats(), strings.ToLower(c.Format)) {
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, display.ErrUnknownFormat, c.Format)
	}

	return nil
}
