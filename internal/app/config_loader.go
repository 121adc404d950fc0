package app

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/internal/infrastructure"
)

// EnvPrefix is the prefix of every environment override, e.g. DYEXTRACT_BROWSER_PROFILE_DIR
const EnvPrefix = "DYEXTRACT"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.dy-extract")
		v.AddConfigPath("/etc/dy-extract")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only reaches Unmarshal for keys viper already knows about
	setDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, config *domain.Config) {
	walkConfig("", reflect.ValueOf(config).Elem(), func(key string, value reflect.Value) {
		if value.Kind() == reflect.Map {
			return
		}
		v.SetDefault(key, value.Interface())
	})
}

// walkConfig calls fn for every leaf field, keyed by its dotted mapstructure path
func walkConfig(prefix string, v reflect.Value, fn func(key string, value reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		value := v.Field(i)
		if value.Kind() == reflect.Struct {
			walkConfig(key, value, fn)
			continue
		}
		fn(key, value)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.OutputDir = expandPath(config.Download.OutputDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.HTTP.CookieFile = expandPath(config.HTTP.CookieFile)
	config.Browser.ProfileDir = expandPath(config.Browser.ProfileDir)
	config.Browser.ExecPath = expandPath(config.Browser.ExecPath)
	config.ExternalTool.CookieFile = expandPath(config.ExternalTool.CookieFile)

	if config.Download.LogsDir == "" && config.Download.OutputDir != "" {
		config.Download.LogsDir = filepath.Join(config.Download.OutputDir, "logs")
	}

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.OutputDir == "" {
		return fmt.Errorf("download output directory not configured")
	}

	if config.Download.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Download.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}

	if config.Download.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.Download.StrategyTimeout <= 0 {
		return fmt.Errorf("strategy timeout must be positive")
	}

	if config.Download.FirstChunkBytes < 1 {
		return fmt.Errorf("first chunk size must be at least 1 byte")
	}

	if config.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}

	if config.Browser.NavigationTimeout < 0 || config.Browser.CaptureNavigationTimeout < 0 || config.Browser.WarmupTimeout < 0 {
		return fmt.Errorf("browser timeouts cannot be negative")
	}

	known := map[string]bool{
		infrastructure.StrategyExternalTool:   true,
		infrastructure.StrategyDirectStream:   true,
		infrastructure.StrategyBrowserFetch:   true,
		infrastructure.StrategyBrowserCapture: true,
	}
	for _, name := range config.Download.DisabledStrategies {
		if !known[name] {
			return fmt.Errorf("unknown strategy in disabled_strategies: %q", name)
		}
	}

	if config.ExternalTool.Binary == "" {
		return fmt.Errorf("external tool binary not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	walkConfig("", reflect.ValueOf(config).Elem(), func(key string, value reflect.Value) {
		if value.Type() == durationType {
			v.Set(key, time.Duration(value.Int()).String())
			return
		}
		v.Set(key, value.Interface())
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
