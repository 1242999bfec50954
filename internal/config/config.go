package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// HOSTEL_SERVER_PORT or HOSTEL_ALLOCATION_MIN_SCORE.
const EnvPrefix = "HOSTEL"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"` // default 7117
	Host string `mapstructure:"host"` // default "127.0.0.1"
}

type StoreConfig struct {
	Type    string `mapstructure:"type"`     // "bolt" or "memory"
	DataDir string `mapstructure:"data_dir"` // default "~/.hostel/data"
}

type AllocationConfig struct {
	MinScore       float64 `mapstructure:"min_score"`        // default 60
	EmptyRoomScore float64 `mapstructure:"empty_room_score"` // default 75
	AutoAllocate   bool    `mapstructure:"auto_allocate"`    // run on student/room changes
	ResyncInterval int     `mapstructure:"resync_interval"`  // seconds between occupancy checks, default 60
}

// AdminConfig guards the endpoints that change allocations. With an empty
// token those endpoints are refused unless Insecure is set.
type AdminConfig struct {
	Token    string `mapstructure:"token"`
	Insecure bool   `mapstructure:"insecure"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // default "info"
	Format string `mapstructure:"format"` // "console" or "json"
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7117,
			Host: "127.0.0.1",
		},
		Store: StoreConfig{
			Type:    "bolt",
			DataDir: defaultDataDir(),
		},
		Allocation: AllocationConfig{
			MinScore:       60,
			EmptyRoomScore: 75,
			ResyncInterval: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from the optional YAML file at path and from
// HOSTEL_* environment variables, layered over DefaultConfig. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides are picked up by
// Unmarshal even when no file mentions them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.data_dir", d.Store.DataDir)
	v.SetDefault("allocation.min_score", d.Allocation.MinScore)
	v.SetDefault("allocation.empty_room_score", d.Allocation.EmptyRoomScore)
	v.SetDefault("allocation.auto_allocate", d.Allocation.AutoAllocate)
	v.SetDefault("allocation.resync_interval", d.Allocation.ResyncInterval)
	v.SetDefault("admin.token", d.Admin.Token)
	v.SetDefault("admin.insecure", d.Admin.Insecure)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Store.Type {
	case "bolt", "memory":
	default:
		return fmt.Errorf("store.type must be bolt or memory, got %q", c.Store.Type)
	}
	if c.Allocation.MinScore < 0 || c.Allocation.MinScore > 100 {
		return fmt.Errorf("allocation.min_score %.2f outside [0,100]", c.Allocation.MinScore)
	}
	if c.Allocation.EmptyRoomScore < 0 || c.Allocation.EmptyRoomScore > 100 {
		return fmt.Errorf("allocation.empty_room_score %.2f outside [0,100]", c.Allocation.EmptyRoomScore)
	}
	if c.Allocation.ResyncInterval < 0 {
		return fmt.Errorf("allocation.resync_interval must not be negative")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// ServerAddress returns the listen address in "host:port" format.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DBPath returns the full path to the BoltDB file (DataDir + "/hostel.db").
func (c *Config) DBPath() string {
	return filepath.Join(c.Store.DataDir, "hostel.db")
}

// defaultDataDir resolves the default data directory.
// It uses os.UserHomeDir() + "/.hostel/data", falling back to
// "/tmp/hostel/data" if the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "hostel", "data")
	}
	return filepath.Join(home, ".hostel", "data")
}
