package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/riverstone/edgeproxy/internal/pluginconf"
)

// Config is the top-level server configuration, loaded from a YAML file.
type Config struct {
	ListenAddr     string         `yaml:"listen_addr"`
	MetricsAddr    string         `yaml:"metrics_addr"`
	Upstream       string         `yaml:"upstream"`
	TrustedProxies []string       `yaml:"trusted_proxies"`
	Cache          CacheConfig    `yaml:"cache"`
	Plugins        []PluginConfig `yaml:"plugins"`
}

// CacheConfig names the process-wide cache backend, eviction manager, and
// predictor constructed once at server start and shared by every
// registered cache plugin instance, instead of each instance building its
// own.
type CacheConfig struct {
	FilePath            string `yaml:"file_path"`
	RedisAddr           string `yaml:"redis_addr"`
	Namespace           string `yaml:"namespace"`
	MemoryCapacityBytes int64  `yaml:"capacity"`
	Eviction            bool   `yaml:"eviction"`
	Predictor           bool   `yaml:"predictor"`
	S3Bucket            string `yaml:"s3_bucket"`
	S3Prefix            string `yaml:"s3_prefix"`
	S3Region            string `yaml:"s3_region"`
	S3AccessKeyID       string `yaml:"s3_access_key_id"`
	S3SecretAccessKey   string `yaml:"s3_secret_access_key"`
	S3SessionToken      string `yaml:"s3_session_token"`
}

// PluginConfig names one plugin instance and its raw options, the shape a
// YAML document hands the builtin constructors via pluginconf.Conf.
type PluginConfig struct {
	Type     string         `yaml:"type"`
	Priority int            `yaml:"priority"`
	Options  map[string]any `yaml:"options"`
}

// LoadConfig reads and parses a YAML config file at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}

	return &cfg, nil
}

// Conf builds a pluginconf.Conf from a copy of this plugin instance's raw
// options. The instance priority is not part of it; registerPlugins passes
// it to the plugin constructor as a separate option.
func (p PluginConfig) Conf() pluginconf.Conf {
	conf := make(pluginconf.Conf, len(p.Options))
	for k, v := range p.Options {
		conf[k] = v
	}
	return conf
}
