package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	ClientConfig
	SecurityConfig
	DiscoveryConfig
	UpstreamConfig
}

type EnvConfig interface {
	GetBaseURL() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFolder() string
	GetMetricsNamespace() string
	GetListenAddr() string
}

type mainConfig struct {
	EnvVars
	Client
	Security
	Discovery
	Upstream
}

// New loads the nearest .env file (if any) and returns the env-backed config.
func New() Config {
	loadDotEnv()
	return mainConfig{}
}

// loadDotEnv walks up from the working directory and loads the first .env found.
// Variables already present in the environment win.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
