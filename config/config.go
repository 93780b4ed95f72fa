package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid marks a configuration that failed validation.
var ErrInvalid = errors.New("invalid config")

const EnvPrefix = "JETSTREAM"

type Config struct {
	Instance    string   `mapstructure:"instance"`
	Scheme      string   `mapstructure:"scheme"`
	Collections []string `mapstructure:"collections"`
	DIDs        []string `mapstructure:"dids"`
	Cursor      int64    `mapstructure:"cursor"`
	Compress    bool     `mapstructure:"compress"`
	Autostart   bool     `mapstructure:"autostart"`
	TUI         bool     `mapstructure:"tui"`

	BufferSize      int `mapstructure:"buffer_size"`
	DedupeSize      int `mapstructure:"dedupe_size"`
	HandleCacheSize int `mapstructure:"handle_cache_size"`

	Transport TransportConfig `mapstructure:"transport"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Bus       BusConfig       `mapstructure:"bus"`
	Log       LogConfig       `mapstructure:"log"`
}

type TransportConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
}

type ReconnectConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	Jitter       float64       `mapstructure:"jitter"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type MetricsConfig struct {
	Window time.Duration `mapstructure:"window"`
	Tick   time.Duration `mapstructure:"tick"`
	Decay  float64       `mapstructure:"decay"`
}

type ActivityConfig struct {
	Size int `mapstructure:"size"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// BusConfig bounds the queue between the consumer and the in-process bus.
type BusConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// SinkConfig enables forwarding to RabbitMQ when AMQPURL is set.
type SinkConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
	Durable  bool   `mapstructure:"durable"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance", "jetstream2.us-east.bsky.network")
	v.SetDefault("scheme", "wss")
	v.SetDefault("collections", []string{})
	v.SetDefault("dids", []string{})
	v.SetDefault("cursor", 0)
	v.SetDefault("compress", false)
	v.SetDefault("autostart", true)
	v.SetDefault("tui", false)

	v.SetDefault("buffer_size", 10000)
	v.SetDefault("dedupe_size", 4096)
	v.SetDefault("handle_cache_size", 10000)

	v.SetDefault("transport.handshake_timeout", "10s")
	v.SetDefault("transport.write_timeout", "5s")
	v.SetDefault("transport.read_limit", 1<<20)

	v.SetDefault("reconnect.initial_delay", "2.5s")
	v.SetDefault("reconnect.max_delay", "30s")
	v.SetDefault("reconnect.multiplier", 2.0)
	v.SetDefault("reconnect.jitter", 0.2)
	v.SetDefault("reconnect.max_attempts", 0)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.cooldown", "30s")

	v.SetDefault("metrics.window", "5s")
	v.SetDefault("metrics.tick", "500ms")
	v.SetDefault("metrics.decay", 0.8)

	v.SetDefault("activity.size", 100)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("bus.queue_size", 4096)

	v.SetDefault("sink.amqp_url", "")
	v.SetDefault("sink.exchange", "jetstream.events")
	v.SetDefault("sink.durable", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Flags declares the command-line overrides. Names match config keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("stream", pflag.ContinueOnError)
	fs.String("instance", "jetstream2.us-east.bsky.network", "jetstream host")
	fs.String("scheme", "wss", "ws or wss")
	fs.StringSlice("collections", nil, "wanted collections (NSIDs, prefix.* allowed)")
	fs.StringSlice("dids", nil, "wanted repository DIDs")
	fs.Int64("cursor", 0, "start cursor in unix microseconds")
	fs.Bool("autostart", true, "connect on startup")
	fs.Bool("tui", false, "run the terminal dashboard")
	fs.String("http.addr", ":8080", "inspector listen address, empty disables")
	fs.String("log.level", "info", "debug|info|warn|error")
	fs.String("sink.amqp_url", "", "forward events to this AMQP broker")
	return fs
}

// Loader owns a viper instance layered as flags > env > file > defaults.
type Loader struct {
	mu   sync.Mutex
	v    *viper.Viper
	file string
}

// NewLoader prepares a loader. file may be empty.
func NewLoader(file string, flags *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	return &Loader{v: v, file: file}, nil
}

// Load decodes and validates the current configuration.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads on config file changes and hands valid results to fn.
// It is a no-op without a file.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.file == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		fn(l.Load())
	})
	l.v.WatchConfig()
}

// LoadConfig is the one-shot form used when no watch is needed.
func LoadConfig(file string, flags *pflag.FlagSet) (*Config, error) {
	l, err := NewLoader(file, flags)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Instance) == "":
		return fmt.Errorf("%w: instance is required", ErrInvalid)
	case c.Scheme != "ws" && c.Scheme != "wss":
		return fmt.Errorf("%w: scheme must be ws or wss, got %q", ErrInvalid, c.Scheme)
	case c.Cursor < 0:
		return fmt.Errorf("%w: cursor must not be negative", ErrInvalid)
	case c.BufferSize <= 0:
		return fmt.Errorf("%w: buffer_size must be positive", ErrInvalid)
	case c.DedupeSize < 0:
		return fmt.Errorf("%w: dedupe_size must not be negative", ErrInvalid)
	case c.Reconnect.Multiplier < 1:
		return fmt.Errorf("%w: reconnect.multiplier must be >= 1", ErrInvalid)
	case c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1:
		return fmt.Errorf("%w: reconnect.jitter must be within [0,1]", ErrInvalid)
	case c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay:
		return fmt.Errorf("%w: reconnect delays must satisfy 0 < initial_delay <= max_delay", ErrInvalid)
	case c.Metrics.Decay < 0 || c.Metrics.Decay >= 1:
		return fmt.Errorf("%w: metrics.decay must be within [0,1)", ErrInvalid)
	case c.Metrics.Window <= 0:
		return fmt.Errorf("%w: metrics.window must be positive", ErrInvalid)
	case c.Metrics.Tick <= 0:
		return fmt.Errorf("%w: metrics.tick must be positive", ErrInvalid)
	case c.Bus.QueueSize <= 0:
		return fmt.Errorf("%w: bus.queue_size must be positive", ErrInvalid)
	case c.Activity.Size <= 0:
		return fmt.Errorf("%w: activity.size must be positive", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log.format must be json or text", ErrInvalid)
	}
	return nil
}
