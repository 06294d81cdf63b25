// Package config provides centralized configuration management for the
// gateway. Three layers, last one wins: embedded defaults, an optional YAML
// config file, and LICITALENS_* environment variables.
package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const envPrefix = "LICITALENS"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Load loads configuration from the three layers and validates the result.
// path may be empty; then only defaults and environment apply. Safe to call
// again for config reload.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]any{}
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		return nil, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	if err := v.MergeConfigMap(defaults); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, defaults, nil)

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setConfig(cfg)

	return cfg, nil
}

// bindEnvKeys registers every known config key with viper so AutomaticEnv
// can see it even when neither defaults nor file set a value.
func bindEnvKeys(v *viper.Viper, node map[string]any, prefix []string) {
	for key, value := range node {
		path := append(append([]string{}, prefix...), key)
		if child, ok := value.(map[string]any); ok {
			bindEnvKeys(v, child, path)
			continue
		}
		_ = v.BindEnv(strings.Join(path, "."))
	}
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
