// Package config holds helpers shared by the binaries for layering
// configuration sources: defaults, a JSON file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// LoadConfigFile reads the JSON file at path into cfg.
//
// Example:
//
//	var fileCfg JSONConfig
//	if err := config.LoadConfigFile("server.json", &fileCfg); err != nil {
//	    log.Fatal().Err(err).Msg("bad config file")
//	}
func LoadConfigFile(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// ParseDuration parses a positive interval. Bare integers are seconds, so
// "10" and "10s" are equivalent; anything time.ParseDuration accepts also
// works.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		s += "s"
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

// GetConfigFilePath returns configFlag, or the CONFIG environment variable
// when the flag is empty.
func GetConfigFilePath(configFlag string) string {
	if configFlag != "" {
		return configFlag
	}
	return strings.TrimSpace(os.Getenv("CONFIG"))
}

// ApplyString overwrites *current with value unless value is empty.
func ApplyString(current *string, value string) {
	if value != "" {
		*current = value
	}
}

// ApplyDuration parses value and overwrites *current with it. An empty value
// leaves *current alone.
func ApplyDuration(current *time.Duration, value string) error {
	if value == "" {
		return nil
	}
	d, err := ParseDuration(value)
	if err != nil {
		return err
	}
	*current = d
	return nil
}
