package config

import "time"

type Config interface {
	EnvConfig
	APIConfig
	RealtimeConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetAPIURL() string
	GetHTTPTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	API
	Realtime
	Storage
}

func New() Config {
	return mainConfig{}
}
