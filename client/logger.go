package client

import (
	"cql-ws/shared"
)

// GetLogger returns the configured logger, or a default one built from
// the environment when the config carries none.
func GetLogger(cfg ClientConfig) *shared.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	logger, _ := shared.NewLoggerFromEnv("client")
	return logger
}
