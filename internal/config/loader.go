package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentlens.yaml"

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
	setString(&cfg.Server.Port, "AGENTLENS_PORT")
	setString(&cfg.Server.CORSOrigin, "AGENTLENS_CORS_ORIGIN")
	setString(&cfg.MCP.Addr, "AGENTLENS_MCP_ADDR")
	setString(&cfg.MCP.Name, "AGENTLENS_MCP_NAME")
	setString(&cfg.MCP.Version, "AGENTLENS_MCP_VERSION")
	setString(&cfg.MCP.APIKey, "AGENTLENS_MCP_API_KEY")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "AGENTLENS_NATS_ENABLED")
	setString(&cfg.History.Path, "AGENTLENS_HISTORY_PATH")
	setInt(&cfg.History.Cap, "AGENTLENS_HISTORY_CAP")
	setInt64(&cfg.History.MaxLogSizeMB, "AGENTLENS_HISTORY_MAX_LOG_SIZE_MB")
	setInt64(&cfg.Cache.L1MaxSizeMB, "AGENTLENS_CACHE_L1_SIZE_MB")
	setString(&cfg.Logging.Level, "AGENTLENS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTLENS_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTLENS_LOG_ASYNC")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path is required")
	}
	if cfg.History.Cap < 1 {
		return errors.New("history.cap must be >= 1")
	}
	if cfg.History.MaxLogSizeMB < 1 {
		return errors.New("history.max_log_size_mb must be >= 1")
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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

// CLIFlags holds optional command line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath  *string
	Port        *string
	LogLevel    *string
	HistoryPath *string
	NatsURL     *string
}

// ParseFlags parses command line arguments into CLIFlags.
// Unset flags stay nil so they do not clobber lower layers.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("agentlens", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	port := fs.String("port", "", "debug API port")
	fs.StringVar(port, "p", "", "debug API port (shorthand)")
	logLevel := fs.String("log-level", "", "log level (debug|info|warn|error)")
	historyPath := fs.String("history-path", "", "tool history JSONL file")
	natsURL := fs.String("nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "port", "p":
			flags.Port = port
		case "log-level":
			flags.LogLevel = logLevel
		case "history-path":
			flags.HistoryPath = historyPath
		case "nats-url":
			flags.NatsURL = natsURL
		}
	})

	return flags, nil
}

// LoadWithCLI loads configuration with the full hierarchy:
// defaults < YAML < ENV < CLI. It returns the resolved YAML path.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// applyCLI overlays non-nil CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.HistoryPath != nil {
		cfg.History.Path = *flags.HistoryPath
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}
