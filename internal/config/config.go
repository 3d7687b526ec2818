package config

import (
	"os"
	"path/filepath"
)

// Config holds all control plane configuration.
type Config struct {
	APIPort    string // management HTTP API port
	ProxyPort  string // tenant-facing reverse proxy port
	DBPath     string // sqlite path for the ambient auth registry
	DataDir    string // data directory root (sources, logs, per-project db files)
	LogDir     string // directory for build/runtime logs
	AdminToken string // shared secret for admin-gated endpoints

	HostSuffix string // virtual hostname suffix, e.g. "shuttleapp.rs"
	MaxDeploys int     // bounded build/load worker pool size
	PortRangeLo int    // first port the manager may assign to a deployment
	PortRangeHi int    // last port (inclusive) the manager may assign

	DockerSocket string // path to the Docker Engine API socket
}

// Load reads configuration from environment variables with sensible defaults,
// and ensures the directories the control plane writes to exist.
func Load() *Config {
	dataDir := envOrDefault("SHUTTLECTL_DATA_DIR", "./data")

	cfg := &Config{
		APIPort:      envOrDefault("SHUTTLECTL_API_PORT", "8080"),
		ProxyPort:    envOrDefault("SHUTTLECTL_PROXY_PORT", "8000"),
		DBPath:       envOrDefault("SHUTTLECTL_DB_PATH", filepath.Join(dataDir, "shuttlectl.db")),
		DataDir:      dataDir,
		LogDir:       envOrDefault("SHUTTLECTL_LOG_DIR", filepath.Join(dataDir, "logs")),
		AdminToken:   envOrDefault("SHUTTLECTL_ADMIN_TOKEN", "shuttlectl-change-me-in-production"),
		HostSuffix:   envOrDefault("SHUTTLECTL_HOST_SUFFIX", "shuttleapp.rs"),
		MaxDeploys:   envOrDefaultInt("SHUTTLECTL_MAX_DEPLOYS", 4),
		PortRangeLo:  envOrDefaultInt("SHUTTLECTL_PORT_RANGE_LO", 20000),
		PortRangeHi:  envOrDefaultInt("SHUTTLECTL_PORT_RANGE_HI", 20100),
		DockerSocket: envOrDefault("SHUTTLECTL_DOCKER_SOCKET", "/var/run/docker.sock"),
	}

	os.MkdirAll(dataDir, 0755)
	os.MkdirAll(cfg.LogDir, 0755)
	os.MkdirAll(filepath.Join(dataDir, "sources"), 0755)
	os.MkdirAll(filepath.Join(dataDir, "databases"), 0755)

	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n := 0
	for _, r := range val {
		if r < '0' || r > '9' {
			return defaultVal
		}
		n = n*10 + int(r-'0')
	}
	return n
}
