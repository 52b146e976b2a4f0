package main

import (
	"flag"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	configpkg "github.com/idudko/go-metric-stream/internal/config"
)

// sourceConfig is the shape shared by the JSON config file and the
// environment. Every field is a string so that unset values stay empty and
// do not override lower-priority sources.
type sourceConfig struct {
	Address       string `json:"address" env:"ADDRESS"`
	GRPCAddress   string `json:"grpc_address" env:"GRPC_ADDRESS"`
	PollInterval  string `json:"poll_interval" env:"POLL_INTERVAL"`
	Key           string `json:"key" env:"KEY"`
	AuditFile     string `json:"audit_file" env:"AUDIT_FILE"`
	AuditURL      string `json:"audit_url" env:"AUDIT_URL"`
	TrustedSubnet string `json:"trusted_subnet" env:"TRUSTED_SUBNET"`
	LogLevel      string `json:"log_level" env:"LOG_LEVEL"`
}

// Config is the resolved server configuration.
type Config struct {
	Address       string
	GRPCAddress   string
	PollInterval  time.Duration
	Key           string
	AuditFile     string
	AuditURL      string
	TrustedSubnet string
	LogLevel      string
	ConfigFile    string
}

func defaultConfig() Config {
	return Config{
		Address:      "localhost:8080",
		GRPCAddress:  "localhost:3200",
		PollInterval: 2 * time.Second,
		LogLevel:     "info",
	}
}

// LoadConfig resolves the configuration from, lowest priority first:
// defaults, the config file (-c/-config or CONFIG), environment variables
// and command line flags.
func LoadConfig(name string, args []string) (Config, error) {
	cfg := defaultConfig()

	var flags sourceConfig
	var configFile string
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&flags.Address, "a", "", "HTTP address to listen on (default "+cfg.Address+")")
	fs.StringVar(&flags.GRPCAddress, "g", "", "gRPC address to listen on (default "+cfg.GRPCAddress+")")
	fs.StringVar(&flags.PollInterval, "p", "", "metric poll interval, e.g. 2s")
	fs.StringVar(&flags.Key, "k", "", "key for signing metric streams")
	fs.StringVar(&flags.AuditFile, "audit-file", "", "path to audit log file")
	fs.StringVar(&flags.AuditURL, "audit-url", "", "URL for audit server")
	fs.StringVar(&flags.TrustedSubnet, "t", "", "trusted subnet in CIDR notation")
	fs.StringVar(&flags.LogLevel, "l", "", "log level")
	fs.StringVar(&configFile, "c", "", "path to config file")
	fs.StringVar(&configFile, "config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.ConfigFile = configpkg.GetConfigFilePath(configFile)
	if cfg.ConfigFile != "" {
		var fileCfg sourceConfig
		if err := configpkg.LoadConfigFile(cfg.ConfigFile, &fileCfg); err != nil {
			return cfg, err
		}
		if err := cfg.apply(fileCfg); err != nil {
			return cfg, err
		}
	}

	var envCfg sourceConfig
	if err := cleanenv.ReadEnv(&envCfg); err != nil {
		return cfg, err
	}
	if err := cfg.apply(envCfg); err != nil {
		return cfg, err
	}

	if err := cfg.apply(flags); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// apply overrides cfg with every non-empty value of src.
func (cfg *Config) apply(src sourceConfig) error {
	configpkg.ApplyString(&cfg.Address, src.Address)
	configpkg.ApplyString(&cfg.GRPCAddress, src.GRPCAddress)
	configpkg.ApplyString(&cfg.Key, src.Key)
	configpkg.ApplyString(&cfg.AuditFile, src.AuditFile)
	configpkg.ApplyString(&cfg.AuditURL, src.AuditURL)
	configpkg.ApplyString(&cfg.TrustedSubnet, src.TrustedSubnet)
	configpkg.ApplyString(&cfg.LogLevel, src.LogLevel)
	return configpkg.ApplyDuration(&cfg.PollInterval, src.PollInterval)
}
