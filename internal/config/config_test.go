package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  bind_address: "127.0.0.1"
  port: 9090
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.ListenAddr())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// Unset fields keep defaults.
	assert.Equal(t, 64*1024, cfg.Server.ReadBufferSize)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"zero read buffer", func(c *Config) { c.Server.ReadBufferSize = 0 }, true},
		{"zero write buffer", func(c *Config) { c.Server.WriteBufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadClientPriority(t *testing.T) {
	t.Setenv("CONCORD_SERVER_URL", "ws://env:8080/ws")
	t.Setenv("CONCORD_TURN_SERVER", "turn:env.example.com")

	// Flags beat environment.
	c := LoadClient(ClientOptions{ServerURL: "ws://flag:8080/ws"})
	assert.Equal(t, "ws://flag:8080/ws", c.ServerURL)
	assert.Equal(t, "turn:env.example.com", c.TURNServer)

	// Environment beats defaults.
	c = LoadClient(ClientOptions{})
	assert.Equal(t, "ws://env:8080/ws", c.ServerURL)
	assert.Equal(t, DefaultSTUN, c.STUNServer)
}

func TestClientTURNServers(t *testing.T) {
	c := LoadClient(ClientOptions{})
	c.TURNServer = ""
	assert.Nil(t, c.TURNServers())

	c.TURNServer = "turn:relay.example.com"
	urls := c.TURNServers()
	require.Len(t, urls, 2)
	assert.Contains(t, urls[0], "transport=udp")
}
