package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowjay/tzwindow/internal/cryptoutil"
)

const (
	envPrefix = "TZW"
)

// Load reads configuration from a file (optionally encrypted), env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			key := os.Getenv("TZW_CONFIG_KEY")
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, errors.New("config file is encrypted but TZW_CONFIG_KEY is not set")
			}
			plain, format, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			vp.SetConfigType(format)
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv("TZW_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"tzw.yaml",
		"tzw.yml",
		"tzw.toml",
		"tzw.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "tzw")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		for _, c := range []string{"tzw.yaml.enc", "tzw.yml.enc", "tzw.toml.enc"} {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".toml") || strings.HasSuffix(path, ".toml.enc") || strings.HasSuffix(path, ".toml.encrypted"):
		return "toml"
	case strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".json.enc") || strings.HasSuffix(path, ".json.encrypted"):
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("watch.interval", "1m")
	vp.SetDefault("watch.retry_count", 3)
	vp.SetDefault("watch.retry_backoff", "5s")
	vp.SetDefault("watch.concurrency", 4)
	vp.SetDefault("state.backend", "local")
	vp.SetDefault("state.local.path", "./state")
	vp.SetDefault("state.compression", "zstd")
	vp.SetDefault("state.keep_last", 10)
	vp.SetDefault("location.timezone", "")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Watch.Interval <= 0 {
		cfg.Watch.Interval = time.Minute
	}
	if cfg.Watch.RetryBackoff == 0 {
		cfg.Watch.RetryBackoff = 5 * time.Second
	}
	if cfg.Watch.Concurrency <= 0 {
		cfg.Watch.Concurrency = 1
	}
}

func expandEnv(cfg *Config) {
	cfg.State.EncryptionKey = os.ExpandEnv(cfg.State.EncryptionKey)
	cfg.State.S3.AccessKey = os.ExpandEnv(cfg.State.S3.AccessKey)
	cfg.State.S3.SecretKey = os.ExpandEnv(cfg.State.S3.SecretKey)
	cfg.State.S3.SessionToken = os.ExpandEnv(cfg.State.S3.SessionToken)
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = os.ExpandEnv(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = os.ExpandEnv(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = os.ExpandEnv(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = os.ExpandEnv(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = os.ExpandEnv(cfg.Matrix[i].RoomID)
	}
	for i := range cfg.AMQP {
		cfg.AMQP[i].URL = os.ExpandEnv(cfg.AMQP[i].URL)
	}
	return cfg
}

// decryptConfig opens an encrypted config and returns it with the format
// recorded when it was sealed.
func decryptConfig(ciphertext []byte, key string) ([]byte, string, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, "", err
	}
	return cryptoutil.OpenConfig(ciphertext, parsed)
}
