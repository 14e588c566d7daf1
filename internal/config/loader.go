package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix namespaces recalld environment variables.
	envPrefix = "RECALLD_"

	// maxConfigFileSize guards against loading oversized config files.
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads configuration with the following precedence (highest wins):
//
//  1. Environment variables (RECALLD_* namespace)
//  2. YAML config file (configPath, skipped when absent)
//  3. Hardcoded defaults
//
// Environment variables map to config keys with a double underscore as the
// section separator, so single underscores survive inside field names:
//
//	RECALLD_DATA_DIR              -> data_dir
//	RECALLD_EMBEDDING__BASE_URL   -> embedding.base_url
//	RECALLD_FACTS__REBUILD_EVERY  -> facts.rebuild_every
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
