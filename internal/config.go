package internal

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/nkhmaladze/BufferManagerDB/internal/bufferpool"
	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
)

const EnvPrefix = "BUFMGR"

type Config struct {
	AppName string `mapstructure:"app_name"`

	BufferPool struct {
		Size   int                   `mapstructure:"size"`
		Policy bufferpool.PolicyType `mapstructure:"policy"`
		Seed   uint64                `mapstructure:"seed"`
	} `mapstructure:"buffer_pool"`

	Storage struct {
		Workdir      string `mapstructure:"workdir"`
		InMemory     bool   `mapstructure:"in_memory"`
		FileCapacity uint32 `mapstructure:"file_capacity"`
		MaxOpenFiles int    `mapstructure:"max_open_files"`
	} `mapstructure:"storage"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Bench struct {
		Policies   []string `mapstructure:"policies"`
		Workload   string   `mapstructure:"workload"`
		ExtraPages int      `mapstructure:"extra_pages"`
		Ops        int      `mapstructure:"ops"`
	} `mapstructure:"bench"`
}

// SetDefaults registers a default for every key so env overrides work
// without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "bufmgr")
	v.SetDefault("buffer_pool.size", bufferpool.DefaultCapacity)
	v.SetDefault("buffer_pool.policy", bufferpool.PolicyClock.String())
	v.SetDefault("buffer_pool.seed", 1)
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.file_capacity", storage.DefaultFileCapacity)
	v.SetDefault("storage.max_open_files", storage.DefaultMaxOpenFiles)
	v.SetDefault("log.level", "info")
	v.SetDefault("bench.policies", []string{"clock", "random"})
	v.SetDefault("bench.workload", "random")
	v.SetDefault("bench.extra_pages", 64)
	v.SetDefault("bench.ops", 10000)
}

// NewViper returns a viper instance with defaults and BUFMGR_ env binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the YAML file at path on the OS filesystem. An empty
// path yields defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigFs(afero.NewOsFs(), path)
}

func LoadConfigFs(fs afero.Fs, path string) (*Config, error) {
	v := NewViper()
	v.SetFs(fs)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals the settings of v into a validated Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	// Policy names decode through PolicyType.UnmarshalText; comma lists from
	// env vars become slices.
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BufferPool.Size < 0 {
		return fmt.Errorf("config: buffer_pool.size must be >= 0, got %d", c.BufferPool.Size)
	}
	if c.Storage.FileCapacity > storage.MaxPagesPerFile {
		return fmt.Errorf("config: storage.file_capacity %d exceeds %d", c.Storage.FileCapacity, storage.MaxPagesPerFile)
	}
	if !c.Storage.InMemory && c.Storage.Workdir == "" {
		return fmt.Errorf("config: storage.workdir is required unless storage.in_memory is set")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.BenchPolicies(); err != nil {
		return err
	}
	return nil
}

// BenchPolicies parses bench.policies.
func (c *Config) BenchPolicies() ([]bufferpool.PolicyType, error) {
	out := make([]bufferpool.PolicyType, 0, len(c.Bench.Policies))
	for _, name := range c.Bench.Policies {
		p, err := bufferpool.ParsePolicyType(name)
		if err != nil {
			return nil, fmt.Errorf("config: bench.policies: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}

func (c *Config) PoolOptions() bufferpool.Options {
	return bufferpool.Options{
		Size:   c.BufferPool.Size,
		Policy: c.BufferPool.Policy,
		Seed:   c.BufferPool.Seed,
	}
}

func (c *Config) DiskOptions() storage.DiskOptions {
	return storage.DiskOptions{
		FileCapacity: c.Storage.FileCapacity,
		MaxOpenFiles: c.Storage.MaxOpenFiles,
	}
}
