package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wallshuffle/internal/storage"
)

// AppName names the config directory and the single-instance lock.
const AppName = "wallshuffle"

const (
	defaultTickInterval = time.Second
	defaultDrainTimeout = 3 * time.Second
	defaultDebounce     = 250 * time.Millisecond
	defaultLogLevel     = "info"
)

// Config holds the widget's runtime configuration.
type Config struct {
	// ManagerPath is the wallpaper manager executable.
	ManagerPath string `mapstructure:"manager-path"`
	// StatePath is the manager's persisted state document.
	StatePath string `mapstructure:"state-path"`
	// SettingsPath is the host settings store.
	SettingsPath string `mapstructure:"settings-path"`
	// SchemaPath optionally overrides field definitions.
	SchemaPath string `mapstructure:"schema-path"`

	LogLevel      string        `mapstructure:"log-level"`
	TickInterval  time.Duration `mapstructure:"tick-interval"`
	DrainTimeout  time.Duration `mapstructure:"drain-timeout"`
	WatchDebounce time.Duration `mapstructure:"watch-debounce"`
	ExitOnQuit    bool          `mapstructure:"exit-on-quit"`
	StartTimer    bool          `mapstructure:"start-timer"`

	// ConfigFile is the file viper read, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

// Load reads configuration from defaults, an optional YAML file and
// WALLSHUFFLE_* environment variables, in increasing precedence.
func Load(configPath string) (Config, error) {
	var cfg Config

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(home, ".config")
	}
	appletDir := filepath.Join(home, ".local", "share", "cinnamon", "applets", "wallpaper-shuffle@abcdqfr")

	v := viper.New()
	v.SetEnvPrefix("WALLSHUFFLE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("manager-path", filepath.Join(appletDir, "wallpaper-manager.sh"))
	v.SetDefault("state-path", filepath.Join(appletDir, "settings-schema.json"))
	settingsPath, err := storage.DefaultSettingsPath(AppName)
	if err != nil {
		settingsPath = filepath.Join(configDir, AppName, "settings.yaml")
	}
	v.SetDefault("settings-path", settingsPath)
	v.SetDefault("schema-path", filepath.Join(configDir, AppName, "schema.yaml"))
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("tick-interval", defaultTickInterval)
	v.SetDefault("drain-timeout", defaultDrainTimeout)
	v.SetDefault("watch-debounce", defaultDebounce)
	v.SetDefault("exit-on-quit", false)
	v.SetDefault("start-timer", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(configDir, AppName, "config.yml"))
	}

	configFile := ""
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	} else {
		configFile = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigFile = configFile

	cfg.ManagerPath = expandHome(cfg.ManagerPath, home)
	cfg.StatePath = expandHome(cfg.StatePath, home)
	cfg.SettingsPath = expandHome(cfg.SettingsPath, home)
	cfg.SchemaPath = expandHome(cfg.SchemaPath, home)

	if cfg.TickInterval <= 0 {
		return cfg, fmt.Errorf("invalid tick-interval: %s", cfg.TickInterval)
	}
	if cfg.DrainTimeout < 0 {
		return cfg, fmt.Errorf("invalid drain-timeout: %s", cfg.DrainTimeout)
	}
	if cfg.ManagerPath == "" {
		return cfg, fmt.Errorf("manager-path is empty")
	}
	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
