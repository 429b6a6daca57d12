// Package config loads the dockserver-relay TOML configuration,
// layering built-in defaults, the system-wide file under /etc, the
// user's file under ~/.config, and finally a CLI-specified path.
// Grounded on the teacher's jsonconfig package (same "defaults, then
// overlay a file" shape), with BurntSushi/toml taking the place of
// encoding/json since the spec calls for a TOML file — a dependency
// adopted from the DataDog-datadog-agent example repo's go.mod, as the
// teacher itself never needed TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	systemConfigPath = "/etc/dockserver_utils/serialTCPConnector-config.toml"
	userConfigSubdir = "dockserver_utils/serialTCPConnector-config.toml"

	DefaultControlPort   = 11000
	DefaultFilesRoot     = "/var/local/dockserver/gliders"
	DefaultLogLevel      = "info"
	DefaultDecompressCmd = "gliderDecompress"
	DefaultAuditLogDir   = "/var/local/dockserver/audit-log"
)

// Config is the parsed configuration tree. It's a plain struct, safe to
// copy after Load returns.
type Config struct {
	TCP struct {
		Server string `toml:"server"`
		Port   int    `toml:"port"`
	} `toml:"TCP"`

	Serial struct {
		Devices []string          `toml:"devices"`
		Options map[string]string `toml:"options"`
	} `toml:"Serial"`

	Control struct {
		Port int `toml:"port"`
	} `toml:"Control"`

	Files struct {
		Root          string `toml:"root"`
		DecompressCmd string `toml:"decompress_cmd"`
		AuditLogDir   string `toml:"audit_log_dir"`
	} `toml:"Files"`

	Logging struct {
		Level string `toml:"level"`
	} `toml:"Logging"`
}

func defaults() Config {
	var c Config
	c.Control.Port = DefaultControlPort
	c.Files.Root = DefaultFilesRoot
	c.Files.DecompressCmd = DefaultDecompressCmd
	c.Files.AuditLogDir = DefaultAuditLogDir
	c.Logging.Level = DefaultLogLevel
	c.Serial.Options = make(map[string]string)
	return c
}

const defaultFileHeader = "# dockserver-relay configuration, generated with built-in defaults.\n" +
	"# Edit the values below; this header comment is not preserved on regeneration.\n\n"

// Load builds the effective configuration: built-in defaults, overlaid
// by the system file (if present), overlaid by the user's file (if
// present; created from defaults if missing), overlaid by cliPath (if
// non-empty and present).
func Load(cliPath string) (Config, error) {
	cfg := defaults()

	if err := overlay(&cfg, systemConfigPath); err != nil {
		return Config{}, err
	}

	userPath, err := userConfigPath()
	if err == nil {
		if _, statErr := os.Stat(userPath); os.IsNotExist(statErr) {
			if err := writeDefaultUserConfig(userPath, defaults()); err != nil {
				return Config{}, err
			}
		} else if err := overlay(&cfg, userPath); err != nil {
			return Config{}, err
		}
	}

	if cliPath != "" {
		if err := overlay(&cfg, cliPath); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func overlay(cfg *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", userConfigSubdir), nil
}

func writeDefaultUserConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating default config %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(defaultFileHeader); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(cfg)
}
