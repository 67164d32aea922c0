// Package config loads stepwatch settings. Values are layered, lowest first:
// built-in defaults, the YAML config file, STEPWATCH_* environment variables
// (optionally seeded from a .env file), and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/buildfarm/stepwatch/internal/dirs"
	"github.com/buildfarm/stepwatch/internal/signal"
	"github.com/buildfarm/stepwatch/internal/supervisor"
)

// EnvPrefix is the environment prefix; log.level reads STEPWATCH_LOG_LEVEL.
const EnvPrefix = "STEPWATCH"

// Config is the full set of stepwatch settings.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	StateDir   string           `mapstructure:"state_dir" yaml:"state_dir"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	NATS       NATSConfig       `mapstructure:"nats" yaml:"nats"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Journal    JournalConfig    `mapstructure:"journal" yaml:"journal"`
}

// LogConfig controls the process logger, not step logs.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is auto, text or json. Auto picks text on a terminal.
	Format string `mapstructure:"format" yaml:"format"`
	// File, when set, receives log output instead of stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// SupervisorConfig maps onto supervisor.Options.
type SupervisorConfig struct {
	KillWait     time.Duration `mapstructure:"kill_wait" yaml:"kill_wait"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StallTimeout time.Duration `mapstructure:"stall_timeout" yaml:"stall_timeout"`
	AuxProcesses []string      `mapstructure:"aux_processes" yaml:"aux_processes"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// NATSConfig enables signal publishing when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// HistoryConfig locates the history database. An empty Path means
// state_dir/history.db.
type HistoryConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	Disabled bool   `mapstructure:"disabled" yaml:"disabled"`
}

// JournalConfig mirrors step log lines to journald when Mirror is set.
type JournalConfig struct {
	Mirror bool `mapstructure:"mirror" yaml:"mirror"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		StateDir: dirs.StateDir(),
		Supervisor: SupervisorConfig{
			KillWait:     supervisor.DefaultKillWait,
			AuxProcesses: slices.Clone(supervisor.DefaultAuxProcesses),
		},
		NATS: NATSConfig{
			SubjectPrefix: signal.DefaultSubjectPrefix,
		},
	}
}

// FlagKeys maps config keys to the CLI flags that override them.
var FlagKeys = map[string]string{
	"log.level":                "log-level",
	"log.format":               "log-format",
	"log.file":                 "log-file",
	"state_dir":                "state-dir",
	"supervisor.kill_wait":     "kill-wait",
	"supervisor.timeout":       "timeout",
	"supervisor.stall_timeout": "stall-timeout",
	"metrics.addr":             "metrics-addr",
	"nats.url":                 "nats-url",
	"nats.subject_prefix":      "nats-subject",
	"history.path":             "history-path",
	"journal.mirror":           "journal",
}

// LoadOptions says where to look for settings.
type LoadOptions struct {
	// ConfigFile is an explicit config path; it must exist. When empty,
	// $STEPWATCH_CONFIG and then dirs.ConfigFile() are tried, and a missing
	// file is not an error.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the environment if present.
	// Existing variables win. Empty means ".env".
	EnvFile string
	// Flags are bound by FlagKeys; flags absent from the set are skipped.
	Flags *pflag.FlagSet
}

// Load resolves the configuration.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		for key, name := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, explicit string) error {
	path := explicit
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigFile(dirs.ConfigFile())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", dirs.ConfigFile(), err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("supervisor.kill_wait", d.Supervisor.KillWait)
	v.SetDefault("supervisor.timeout", d.Supervisor.Timeout)
	v.SetDefault("supervisor.stall_timeout", d.Supervisor.StallTimeout)
	v.SetDefault("supervisor.aux_processes", d.Supervisor.AuxProcesses)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject_prefix", d.NATS.SubjectPrefix)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.disabled", d.History.Disabled)
	v.SetDefault("journal.mirror", d.Journal.Mirror)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be auto, text or json, got %q", c.Log.Format))
	}
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir: must not be empty"))
	}
	for key, d := range map[string]time.Duration{
		"supervisor.kill_wait":     c.Supervisor.KillWait,
		"supervisor.timeout":       c.Supervisor.Timeout,
		"supervisor.stall_timeout": c.Supervisor.StallTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative, got %s", key, d))
		}
	}
	return errors.Join(errs...)
}

// HistoryPath is where the history database lives.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return dirs.HistoryFile(c.StateDir)
}

// LogDir is where `stepwatch run` writes step logs by default.
func (c *Config) LogDir() string {
	return dirs.LogDir(c.StateDir)
}

// SupervisorOptions converts the supervisor section.
func (c *Config) SupervisorOptions() supervisor.Options {
	return supervisor.Options{
		AuxProcesses: c.Supervisor.AuxProcesses,
		KillWait:     c.Supervisor.KillWait,
		Timeout:      c.Supervisor.Timeout,
		StallTimeout: c.Supervisor.StallTimeout,
	}
}
