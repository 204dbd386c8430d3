package config

import (
	"strings"
	"time"
)

const (
	apiURLVar      = "API_URL"
	httpTimeoutVar = "HTTP_TIMEOUT"
)

type API struct{}

var _ APIConfig = API{}

// GetAPIURL returns the REST base URL without a trailing slash (e.g. "http://localhost:3000/api")
func (API) GetAPIURL() string {
	return strings.TrimRight(GetEnv(apiURLVar, "http://localhost:3000/api"), "/")
}

func (API) GetHTTPTimeout() time.Duration {
	return GetEnvDuration(httpTimeoutVar, 30*time.Second)
}
