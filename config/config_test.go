package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "jetstream2.us-east.bsky.network", cfg.Instance)
	assert.Equal(t, "wss", cfg.Scheme)
	assert.Empty(t, cfg.Collections)
	assert.True(t, cfg.Autostart)
	assert.Equal(t, 10000, cfg.BufferSize)
	assert.Equal(t, 2500*time.Millisecond, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, uint32(5), cfg.Breaker.MaxFailures)
	assert.Equal(t, 5*time.Second, cfg.Metrics.Window)
	assert.Equal(t, 500*time.Millisecond, cfg.Metrics.Tick)
	assert.InDelta(t, 0.8, cfg.Metrics.Decay, 1e-9)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "jetstream.events", cfg.Sink.Exchange)
	assert.Equal(t, 4096, cfg.Bus.QueueSize)

	conn := cfg.Connection()
	assert.Equal(t, "wss://jetstream2.us-east.bsky.network/subscribe", conn.URL(0))
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instance: localhost:6008
scheme: ws
collections: [app.bsky.feed.post, app.bsky.graph.*]
cursor: 1725911162329308
reconnect:
  initial_delay: 1s
  max_delay: 3s
  multiplier: 1
`), 0o600))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6008", cfg.Instance)
	assert.Equal(t, []string{"app.bsky.feed.post", "app.bsky.graph.*"}, cfg.Collections)
	assert.Equal(t, int64(1725911162329308), cfg.Cursor)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialDelay)
	assert.InDelta(t, 1.0, cfg.Reconnect.Multiplier, 1e-9)
	assert.Equal(t,
		"ws://localhost:6008/subscribe?wantedCollections=app.bsky.feed.post&wantedCollections=app.bsky.graph.%2A&cursor=1725911162329308",
		cfg.Connection().URL(cfg.Cursor))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("JETSTREAM_INSTANCE", "jetstream1.us-west.bsky.network")
	t.Setenv("JETSTREAM_BUFFER_SIZE", "50")
	t.Setenv("JETSTREAM_METRICS_WINDOW", "10s")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "jetstream1.us-west.bsky.network", cfg.Instance)
	assert.Equal(t, 50, cfg.BufferSize)
	assert.Equal(t, 10*time.Second, cfg.Metrics.Window)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("JETSTREAM_INSTANCE", "from-env")

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"--instance=from-flag", "--cursor=42", "--tui"}))

	cfg, err := LoadConfig("", fs)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Instance)
	assert.Equal(t, int64(42), cfg.Cursor)
	assert.True(t, cfg.TUI)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestConfig_Validate(t *testing.T) {
	base, err := LoadConfig("", nil)
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"empty instance":     func(c *Config) { c.Instance = " " },
		"bad scheme":         func(c *Config) { c.Scheme = "http" },
		"negative cursor":    func(c *Config) { c.Cursor = -1 },
		"zero buffer":        func(c *Config) { c.BufferSize = 0 },
		"multiplier below 1": func(c *Config) { c.Reconnect.Multiplier = 0.5 },
		"jitter above 1":     func(c *Config) { c.Reconnect.Jitter = 1.5 },
		"max below initial":  func(c *Config) { c.Reconnect.MaxDelay = time.Second },
		"decay of 1":         func(c *Config) { c.Metrics.Decay = 1 },
		"zero window":        func(c *Config) { c.Metrics.Window = 0 },
		"zero tick":          func(c *Config) { c.Metrics.Tick = 0 },
		"zero bus queue":     func(c *Config) { c.Bus.QueueSize = 0 },
		"log format":         func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestConfig_Converters(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Len(t, cfg.ConsumerOptions(), 4)
	assert.Equal(t, 5*time.Second, cfg.Engine().Window)
	assert.Equal(t, int64(1<<20), cfg.WS().ReadLimit)
	assert.Equal(t, 100, cfg.Service().ActivitySize)
	assert.Equal(t, "v1", cfg.API("v1").Version)
	assert.Empty(t, cfg.Exchange().URL)

	cfg.Log.Level = "DEBUG"
	assert.Equal(t, "DEBUG", cfg.SlogLevel().String())
}

func TestLoader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instance: first.host\n"), 0o600))

	l, err := NewLoader(path, nil)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []string
	)
	l.Watch(func(cfg *Config, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		seen = append(seen, cfg.Instance)
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(path, []byte("instance: second.host\n"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "second.host"
	}, 5*time.Second, 20*time.Millisecond)
}
