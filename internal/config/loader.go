package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the bridge.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr            string `json:"addr" yaml:"addr" toml:"addr"`
	SerialPort      string `json:"serial_port" yaml:"serial_port" toml:"serial_port"`
	UARTBaud        int    `json:"uart_baud" yaml:"uart_baud" toml:"uart_baud"`
	IDFBaud         int    `json:"idf_baud" yaml:"idf_baud" toml:"idf_baud"`
	ProjectDir      string `json:"project_dir" yaml:"project_dir" toml:"project_dir"`
	ProbeTimeoutMS  int    `json:"probe_timeout_ms" yaml:"probe_timeout_ms" toml:"probe_timeout_ms"`
	SampleTimeoutMS int    `json:"sample_timeout_ms" yaml:"sample_timeout_ms" toml:"sample_timeout_ms"`
	RebootDelayMS   int    `json:"reboot_delay_ms" yaml:"reboot_delay_ms" toml:"reboot_delay_ms"`
	BuildTimeoutS   int    `json:"build_timeout_s" yaml:"build_timeout_s" toml:"build_timeout_s"`
	FlashTimeoutS   int    `json:"flash_timeout_s" yaml:"flash_timeout_s" toml:"flash_timeout_s"`
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
		if err := yaml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
