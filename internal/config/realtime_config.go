package config

import (
	"strings"
	"time"
)

const (
	realtimeURLVar     = "REALTIME_URL"
	realtimeEnabledVar = "REALTIME_ENABLED"
	realtimeTimeoutVar = "REALTIME_CONNECT_TIMEOUT"
)

type RealtimeConfig interface {
	GetRealtimeURL() string
	GetRealtimeEnabled() bool
	GetRealtimeConnectTimeout() time.Duration
}

type Realtime struct{}

var _ RealtimeConfig = Realtime{}

// GetRealtimeURL returns the websocket endpoint. When unset it is derived from
// the API URL by dropping the /api suffix and switching to the ws scheme.
func (Realtime) GetRealtimeURL() string {
	if v := GetEnv(realtimeURLVar, ""); v != "" {
		return v
	}
	base := strings.TrimSuffix(API{}.GetAPIURL(), "/api")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (Realtime) GetRealtimeEnabled() bool {
	return GetEnvBool(realtimeEnabledVar, true)
}

func (Realtime) GetRealtimeConnectTimeout() time.Duration {
	return GetEnvDuration(realtimeTimeoutVar, 5*time.Second)
}
