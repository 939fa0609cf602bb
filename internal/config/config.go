package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigName is the config file looked up in the working directory
	ConfigName = "dockersmoke"
	// EnvPrefix prefixes environment overrides, e.g. DOCKERSMOKE_WAIT_TIMEOUT
	EnvPrefix = "DOCKERSMOKE"
)

// DefaultWaitTimeout bounds the readiness wait unless configured.
const DefaultWaitTimeout = 2 * time.Minute

// Loaders selectable with the loader key.
const (
	LoaderAPI    = "api"
	LoaderDocker = "docker"
	LoaderPodman = "podman"
)

// Config is the full dockersmoke configuration
type Config struct {
	Archive   string       `mapstructure:"archive"`
	Ports     []string     `mapstructure:"ports"`
	Loader    string       `mapstructure:"loader"`
	Preflight bool         `mapstructure:"preflight"`
	Lock      bool         `mapstructure:"lock"`
	DataDir   string       `mapstructure:"data_dir"`
	User      string       `mapstructure:"user"`
	Wait      WaitConfig   `mapstructure:"wait"`
	Probe     ProbeConfig  `mapstructure:"probe"`
	Docker    DockerConfig `mapstructure:"docker"`
	Log       LogConfig    `mapstructure:"log"`
}

// WaitConfig configures the readiness wait
type WaitConfig struct {
	Pattern      string        `mapstructure:"pattern"`
	Regexp       bool          `mapstructure:"regexp"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ProbeConfig configures the HTTP probe
type ProbeConfig struct {
	Port    int           `mapstructure:"port"`
	Host    string        `mapstructure:"host"`
	Path    string        `mapstructure:"path"`
	Status  int           `mapstructure:"status"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DockerConfig configures the daemon connection. An empty host falls back
// to DOCKER_HOST.
type DockerConfig struct {
	Host    string        `mapstructure:"host"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Debug bool   `mapstructure:"debug"`
	File  string `mapstructure:"file"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("archive", "")
	v.SetDefault("ports", []string{"7474", "7687"})
	v.SetDefault("loader", LoaderAPI)
	v.SetDefault("preflight", true)
	v.SetDefault("lock", true)
	v.SetDefault("data_dir", "")
	v.SetDefault("user", "")

	v.SetDefault("wait.pattern", "Started.")
	v.SetDefault("wait.regexp", false)
	v.SetDefault("wait.timeout", DefaultWaitTimeout)
	v.SetDefault("wait.poll_interval", 500*time.Millisecond)

	v.SetDefault("probe.port", 7474)
	v.SetDefault("probe.host", "localhost")
	v.SetDefault("probe.path", "/")
	v.SetDefault("probe.status", 200)
	v.SetDefault("probe.timeout", 10*time.Second)

	v.SetDefault("docker.host", "")
	v.SetDefault("docker.timeout", 30*time.Second)

	v.SetDefault("log.debug", false)
	v.SetDefault("log.file", "")
}

// New returns a viper instance with defaults and DOCKERSMOKE_* env binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the config file (configFile, or dockersmoke.yaml in the working
// directory when present) and decodes the merged configuration.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that decoding cannot.
func (c *Config) Validate() error {
	switch c.Loader {
	case LoaderAPI, LoaderDocker, LoaderPodman:
	default:
		return fmt.Errorf("invalid loader %q (want %s, %s or %s)", c.Loader, LoaderAPI, LoaderDocker, LoaderPodman)
	}
	if c.Wait.Timeout <= 0 {
		return fmt.Errorf("wait.timeout must be positive, got %s", c.Wait.Timeout)
	}
	if c.Probe.Port <= 0 || c.Probe.Port > 65535 {
		return fmt.Errorf("invalid probe.port %d", c.Probe.Port)
	}
	return nil
}
