package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: 8080,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Sandbox: SandboxConfig{
			SimulatedDelayMs: 5,
		},
		MCP: MCPConfig{
			Enabled:   false,
			Transport: "stdio",
			HTTPPort:  8081,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		err := validConfig().validate()
		require.NoError(t, err)
	})

	t.Run("InvalidHTTPPort", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HTTPPort = 0

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server.http_port")
	})

	t.Run("HTTPPortTooLarge", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HTTPPort = 70000

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server.http_port")
	})

	t.Run("InvalidLoggingMode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Mode = "verbose"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging.mode")
	})

	t.Run("NegativeSimulatedDelay", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sandbox.SimulatedDelayMs = -1

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated_delay_ms")
	})

	t.Run("InvalidMCPTransport", func(t *testing.T) {
		cfg := validConfig()
		cfg.MCP.Transport = "grpc"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid mcp.transport")
	})
}

func TestGetSimulatedDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Sandbox.SimulatedDelayMs = 250
	assert.Equal(t, 250*time.Millisecond, cfg.GetSimulatedDelay())
}
