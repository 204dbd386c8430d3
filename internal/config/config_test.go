package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-task-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	for _, v := range []string{"API_URL", "REALTIME_URL", "REALTIME_ENABLED", "REALTIME_CONNECT_TIMEOUT", "ENV", "DATA_FOLDER"} {
		t.Setenv(v, "")
	}
	c := config.New()

	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "http://localhost:3000/api", c.GetAPIURL())
	require.Equal(t, "ws://localhost:3000/ws", c.GetRealtimeURL())
	require.True(t, c.GetRealtimeEnabled())
	require.Equal(t, 5*time.Second, c.GetRealtimeConnectTimeout())
	require.Equal(t, "data/session.db", c.GetCredentialDBPath())
}

func TestConfig_Overrides(t *testing.T) {
	t.Setenv("API_URL", "https://tasks.example.com/api/")
	t.Setenv("REALTIME_URL", "")
	t.Setenv("REALTIME_ENABLED", "false")
	t.Setenv("REALTIME_CONNECT_TIMEOUT", "750ms")
	c := config.New()

	require.Equal(t, "https://tasks.example.com/api", c.GetAPIURL())
	require.Equal(t, "wss://tasks.example.com/ws", c.GetRealtimeURL())
	require.False(t, c.GetRealtimeEnabled())
	require.Equal(t, 750*time.Millisecond, c.GetRealtimeConnectTimeout())
}

func TestConfig_MalformedFallsBack(t *testing.T) {
	t.Setenv("REALTIME_ENABLED", "maybe")
	t.Setenv("REALTIME_CONNECT_TIMEOUT", "soon")
	c := config.New()

	require.True(t, c.GetRealtimeEnabled())
	require.Equal(t, 5*time.Second, c.GetRealtimeConnectTimeout())
}
