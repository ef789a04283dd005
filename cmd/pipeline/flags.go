package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	Layers          []string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	ShowTypes       bool
	Validate        bool
}

type layerFlag []string

func (l *layerFlag) String() string { return fmt.Sprint(*l) }

func (l *layerFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("PIPELINE_CONFIG", "configs/pipeline.yaml"),
		"Path to configuration file (env: PIPELINE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("PIPELINE_CONFIG", "configs/pipeline.yaml"),
		"Path to configuration file (env: PIPELINE_CONFIG)")

	var layers layerFlag
	fs.Var(&layers, "layer", "Additional configuration file merged over -config, repeatable")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("PIPELINE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: PIPELINE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("PIPELINE_LOG_FORMAT", "json"),
		"Log format: json, text (env: PIPELINE_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("PIPELINE_DEBUG", false),
		"Enable debug mode (env: PIPELINE_DEBUG)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("PIPELINE_SHUTDOWN_TIMEOUT", 0),
		"Graceful shutdown timeout, 0 to use the config value (env: PIPELINE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.ShowTypes, "types", false, "List built-in component types and exit")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Layers = layers
	if cfg.ShowHelp {
		fs.Usage()
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp || cfg.ShowTypes {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	for _, layer := range cfg.Layers {
		if _, err := os.Stat(layer); err != nil {
			return fmt.Errorf("config layer not found: %s", layer)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - multi-tenant device event pipeline

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with a base config and a site override
  %s --config=configs/pipeline.yaml --layer=/etc/pipeline/site.yaml

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Override connection settings from the environment
  export PIPELINE_NATS_URL=nats://nats:4222
  export PIPELINE_POSTGRES_DSN=postgres://pipeline@db/devices
  %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
