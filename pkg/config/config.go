package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridianlabs/davsync/pkg/types"
)

// Config is davsyncd's daemon configuration.
type Config struct {
	// Directory is where the BoltStore database and cached bodies live.
	Directory string `yaml:"directory"`
	// BundleIdentifier identifies this daemon to the host's background
	// transfer session enumerator (see pkg/transfer.EncodeSessionIdentifier).
	BundleIdentifier string `yaml:"bundleIdentifier"`
	// SharedContainerIdentifier, when set, is the app-group container this
	// daemon and any co-installed client share Directory under. Left empty
	// for a standalone daemon with no sibling process. It is loaded from the
	// file but not read by davsyncd, and is not passed to the Transfer
	// Manager.
	SharedContainerIdentifier string `yaml:"sharedContainerIdentifier,omitempty"`
	// MaxConcurrentDownloads bounds each account's Transfer Manager.
	MaxConcurrentDownloads int64 `yaml:"maxConcurrentDownloads"`
	// ListenAddress is where the HTTP status/control API (pkg/api) binds.
	ListenAddress string `yaml:"listenAddress"`
	// LogLevel and LogJSON configure pkg/log.
	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`
	// Accounts lets a fresh daemon start pre-registered instead of requiring
	// an `account add` call before its first sync.
	Accounts []AccountConfig `yaml:"accounts,omitempty"`
}

// AccountConfig seeds one account on daemon startup if it isn't already in
// the Store.
type AccountConfig struct {
	BaseURL  string `yaml:"baseUrl"`
	Username string `yaml:"username"`
	Label    string `yaml:"label,omitempty"`
}

// Default returns a Config with every field set to a usable value.
func Default() Config {
	return Config{
		Directory:              "/var/lib/davsyncd",
		BundleIdentifier:       "com.example.davsyncd",
		MaxConcurrentDownloads: 4,
		ListenAddress:          "127.0.0.1:8787",
		LogLevel:               "info",
	}
}

// Load reads path and overlays it onto Default. A missing file is not an
// error: Load returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, types.NewError(types.KindStorage, "read config file", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, types.NewError(types.KindInvalidArgument, "parse config file", err)
	}
	return cfg, nil
}
