package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	configpkg "github.com/idudko/go-metric-stream/internal/config"
)

const (
	transportHTTP = "http"
	transportGRPC = "grpc"
)

type sourceConfig struct {
	Address       string `json:"address" env:"ADDRESS"`
	GRPCAddress   string `json:"grpc_address" env:"GRPC_ADDRESS"`
	Transport     string `json:"transport" env:"TRANSPORT"`
	Key           string `json:"key" env:"KEY"`
	FetchInterval string `json:"fetch_interval" env:"FETCH_INTERVAL"`
	LogLevel      string `json:"log_level" env:"LOG_LEVEL"`
}

// Config is the resolved client configuration. A zero FetchInterval means a
// single fetch.
type Config struct {
	Address       string
	GRPCAddress   string
	Transport     string
	Key           string
	FetchInterval time.Duration
	LogLevel      string
	ConfigFile    string
}

func defaultConfig() Config {
	return Config{
		Address:     "localhost:8080",
		GRPCAddress: "localhost:3200",
		Transport:   transportHTTP,
		LogLevel:    "info",
	}
}

// LoadConfig resolves the configuration from defaults, the config file,
// environment variables and flags, in increasing priority.
func LoadConfig(name string, args []string) (Config, error) {
	cfg := defaultConfig()

	var flags sourceConfig
	var configFile string
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&flags.Address, "a", "", "server HTTP address (default "+cfg.Address+")")
	fs.StringVar(&flags.GRPCAddress, "g", "", "server gRPC address (default "+cfg.GRPCAddress+")")
	fs.StringVar(&flags.Transport, "t", "", "transport: http or grpc")
	fs.StringVar(&flags.Key, "k", "", "key for verifying metric streams")
	fs.StringVar(&flags.FetchInterval, "i", "", "fetch repeatedly at this interval instead of once")
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

	if cfg.Transport != transportHTTP && cfg.Transport != transportGRPC {
		return cfg, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return cfg, nil
}

func (cfg *Config) apply(src sourceConfig) error {
	configpkg.ApplyString(&cfg.Address, src.Address)
	configpkg.ApplyString(&cfg.GRPCAddress, src.GRPCAddress)
	configpkg.ApplyString(&cfg.Transport, src.Transport)
	configpkg.ApplyString(&cfg.Key, src.Key)
	configpkg.ApplyString(&cfg.LogLevel, src.LogLevel)
	return configpkg.ApplyDuration(&cfg.FetchInterval, src.FetchInterval)
}
