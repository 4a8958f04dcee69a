package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"volttest/internal/common/fsutil"
)

// Config holds runtime parameters for the harness.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	// Addr is the control API listen address, e.g. :9090.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// AppRoot is the root of the application under test; '~' is expanded.
	AppRoot string `json:"app_root" yaml:"app_root" toml:"app_root"`
	Host    string `json:"host" yaml:"host" toml:"host"`
	// Port is the preferred starting port for the spawned server.
	Port  int  `json:"port" yaml:"port" toml:"port"`
	Debug bool `json:"debug" yaml:"debug" toml:"debug"`
	// ServerBin overrides the runtime used to spawn the server (default php).
	ServerBin       string `json:"server_bin" yaml:"server_bin" toml:"server_bin"`
	StartTimeoutSec int    `json:"start_timeout_sec" yaml:"start_timeout_sec" toml:"start_timeout_sec"`
	StopTimeoutSec  int    `json:"stop_timeout_sec" yaml:"stop_timeout_sec" toml:"stop_timeout_sec"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if cfg.AppRoot != "" {
		expanded, err := fsutil.ExpandHome(cfg.AppRoot)
		if err != nil {
			return cfg, fmt.Errorf("app_root: %w", err)
		}
		cfg.AppRoot = expanded
	}
	return cfg, nil
}
