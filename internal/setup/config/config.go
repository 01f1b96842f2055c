package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrUnknownStorageDriver  = errors.New("unknown storage driver")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v1.0.0"

// Current version of the config files.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig `koanf:"common"`
	Bot    BotConfig    `koanf:"bot"`
}

// CommonConfig contains configuration shared by the bot and the db tool.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Storage    Storage    `koanf:"storage"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Loki       Loki       `koanf:"loki"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log session directories to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// Storage selects where reputation totals live.
type Storage struct {
	// Driver is "sqlite" or "postgres".
	Driver string `koanf:"driver"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`
	// PoolSize is the number of sqlite connections.
	PoolSize int `koanf:"pool_size"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Enabled stores forum notifications in Redis instead of memory.
	Enabled bool `koanf:"enabled"`
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Loki contains Grafana Loki log shipping configuration.
type Loki struct {
	Enabled bool `koanf:"enabled"`
	// Base URL, e.g. http://localhost:3100. The push path is appended.
	URL string `koanf:"url"`
	// Maximum entries per push.
	BatchMaxSize int `koanf:"batch_max_size"`
	// Maximum wait before a partial batch is pushed, in milliseconds.
	BatchMaxWaitMS int `koanf:"batch_max_wait_ms"`
	// Static labels attached to every stream.
	Labels   map[string]string `koanf:"labels"`
	Username string            `koanf:"username"`
	Password string            `koanf:"password"`
}

// BotConfig contains Discord bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Discord credentials.
	Discord Discord `koanf:"discord"`
	// Channel ids the bot works in.
	Channels Channels `koanf:"channels"`
	// Forum compliance checker settings.
	Forum Forum `koanf:"forum"`
	// Admin role and reputation tiers.
	Roles Roles `koanf:"roles"`
	// Periodic role and nickname refresh.
	Refresh Refresh `koanf:"refresh"`
	// File with one location name per line, relative to the config directory.
	LocationsFile string `koanf:"locations_file"`
	// Text of the sticky message. Empty uses the built-in help text.
	StickyMessage string `koanf:"sticky_message"`
}

// Discord contains the bot credentials.
type Discord struct {
	Token string `koanf:"token"`
}

// Channels holds channel ids. A zero id disables the matching feature.
type Channels struct {
	Rep    uint64 `koanf:"rep"`
	Forum  uint64 `koanf:"forum"`
	Log    uint64 `koanf:"log"`
	Sticky uint64 `koanf:"sticky"`
}

// Forum contains forum checker settings.
type Forum struct {
	MissingPriceTag    string        `koanf:"missing_price_tag"`
	MissingLocationTag string        `koanf:"missing_location_tag"`
	ClearCommand       string        `koanf:"clear_command"`
	MaxThreadAge       time.Duration `koanf:"max_thread_age"`
	NotificationTTL    time.Duration `koanf:"notification_ttl"`
	HistoryScanLimit   int           `koanf:"history_scan_limit"`
}

// Roles contains role configuration.
type Roles struct {
	// Members with this role may use privileged commands and !clear.
	AdminRoleID uint64 `koanf:"admin_role_id"`
	// Reputation tiers, in any order.
	Tiers []RoleTier `koanf:"tiers"`
}

// RoleTier grants a role at a reputation threshold.
type RoleTier struct {
	Threshold int64  `koanf:"threshold"`
	RoleID    uint64 `koanf:"role_id"`
}

// Refresh contains the periodic role refresh schedule.
type Refresh struct {
	Interval     time.Duration `koanf:"interval"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	Concurrency  int           `koanf:"concurrency"`
	// Spacing between role and nickname edits.
	MinInterval time.Duration `koanf:"min_interval"`
	Jitter      time.Duration `koanf:"jitter"`
}

// DefaultConfigPaths lists the directories searched for config files, in order.
func DefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return []string{
		".repbot",
		homeDir + "/.repbot/config",
		"/etc/repbot/config",
		"/app/config",
		"config",
		".",
	}, nil
}

// LoadConfig loads the configuration from the default search paths.
// It returns the directory the first config file was found in.
func LoadConfig() (*Config, string, error) {
	paths, err := DefaultConfigPaths()
	if err != nil {
		return nil, "", err
	}

	return LoadConfigFrom(paths...)
}

// LoadConfigFrom loads common.toml and bot.toml from the first path containing each.
func LoadConfigFrom(configPaths ...string) (*Config, string, error) {
	k := koanf.New(".")

	var usedConfigPath string

	configFiles := []string{"common", "bot"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// applyDefaults fills in values left empty in the config files.
func (c *Config) applyDefaults() {
	if c.Common.Storage.Driver == "" {
		c.Common.Storage.Driver = DriverSQLite
	}

	if c.Common.Storage.SQLitePath == "" {
		c.Common.Storage.SQLitePath = "reviews.db"
	}

	if c.Common.Storage.PoolSize <= 0 {
		c.Common.Storage.PoolSize = 4
	}

	if c.Common.Debug.LogLevel == "" {
		c.Common.Debug.LogLevel = "info"
	}

	if c.Common.Debug.MaxLogsToKeep <= 0 {
		c.Common.Debug.MaxLogsToKeep = 10
	}

	if c.Common.Debug.MaxLogLines <= 0 {
		c.Common.Debug.MaxLogLines = 100000
	}

	forum := &c.Bot.Forum
	if forum.MissingPriceTag == "" {
		forum.MissingPriceTag = "Missing Price"
	}

	if forum.MissingLocationTag == "" {
		forum.MissingLocationTag = "Missing Location"
	}

	if forum.ClearCommand == "" {
		forum.ClearCommand = "!clear"
	}

	if forum.MaxThreadAge <= 0 {
		forum.MaxThreadAge = 24 * time.Hour
	}

	if forum.NotificationTTL <= 0 {
		forum.NotificationTTL = 24 * time.Hour
	}

	if forum.HistoryScanLimit <= 0 {
		forum.HistoryScanLimit = 100
	}

	refresh := &c.Bot.Refresh
	if refresh.Interval <= 0 {
		refresh.Interval = time.Hour
	}

	if refresh.Concurrency <= 0 {
		refresh.Concurrency = 4
	}

	if refresh.MinInterval <= 0 {
		refresh.MinInterval = 250 * time.Millisecond
	}

	if c.Bot.LocationsFile == "" {
		c.Bot.LocationsFile = "locations.txt"
	}
}

func (c *Config) validate() error {
	switch c.Common.Storage.Driver {
	case DriverSQLite, DriverPostgres:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorageDriver, c.Common.Storage.Driver)
	}
}

// checkConfigVersion validates the version of a config file.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/repbot/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
