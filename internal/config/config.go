package config

import (
	"fmt"
	"time"
)

type Config interface {
	EnvConfig
	StoreConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetConfigFile() string
}

type mainConfig struct {
	EnvVars
	Store
	Session
}

// New reads the environment and, when CONFIG_FILE names one, the YAML session file.
func New() (Config, error) {
	env := EnvVars{}
	session, err := LoadSession(env.GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("[config.New] %w", err)
	}
	return mainConfig{EnvVars: env, Session: session}, nil
}
