package config

import (
	"strings"

	"github.com/allisson/go-env"
)

const (
	baseURLEnvVar   = "SUPERSET_URL"
	appNameEnvVar   = "APP_NAME"
	folderEnvVar    = "FOLDER"
	logLevelEnvVar  = "LOG_LEVEL"
	namespaceEnvVar = "METRICS_NAMESPACE"
	listenEnvVar    = "LISTEN_ADDR"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetBaseURL returns the analytics platform root (e.g. "http://localhost:8088"), without a trailing slash.
func (EnvVars) GetBaseURL() string {
	return strings.TrimRight(env.GetString(baseURLEnvVar, "http://localhost:8088"), "/")
}

func (EnvVars) GetAppName() string {
	return env.GetString(appNameEnvVar, "Superset Kernel")
}

func (EnvVars) GetEnv() string {
	return env.GetString("ENV", "DEV")
}

func (EnvVars) GetLogLevel() string {
	return env.GetString(logLevelEnvVar, "info")
}

func (EnvVars) GetDataFolder() string {
	return env.GetString(folderEnvVar, "./data")
}

func (EnvVars) GetMetricsNamespace() string {
	return env.GetString(namespaceEnvVar, "superset_kernel")
}

// GetListenAddr is where cmd/fakeupstream serves the fake platform.
func (EnvVars) GetListenAddr() string {
	return env.GetString(listenEnvVar, ":8088")
}
