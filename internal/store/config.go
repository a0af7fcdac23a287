package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the root directories that named stores live under, one per
// store kind. Empty fields fall back to per-OS defaults.
type Config struct {
	UserRoot    string `yaml:"userRoot,omitempty"`
	MachineRoot string `yaml:"machineRoot,omitempty"`
	ServiceRoot string `yaml:"serviceRoot,omitempty"`
}

// DefaultConfigPath returns the default config file location
// (<user-config-dir>/cmsutil/config.yaml), or "" if the user config
// directory cannot be determined.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cmsutil", "config.yaml")
}

// LoadConfig loads store-root configuration from a YAML file. An empty path
// means the default location; a missing file at the default location yields
// a zero Config (defaults apply). An explicitly given path must exist.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	var cfg Config
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Root returns the store root directory for a kind, applying defaults for
// unset fields: the user kind lives under the user config directory, the
// machine and service kinds under system paths.
func (c *Config) Root(kind Kind) (string, error) {
	switch kind {
	case KindUser:
		if c.UserRoot != "" {
			return c.UserRoot, nil
		}
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolving user store root: %w", err)
		}
		return filepath.Join(dir, "cmsutil", "stores"), nil
	case KindMachine:
		if c.MachineRoot != "" {
			return c.MachineRoot, nil
		}
		return filepath.Join("/etc", "cmsutil", "stores"), nil
	case KindService:
		if c.ServiceRoot != "" {
			return c.ServiceRoot, nil
		}
		return filepath.Join("/var", "lib", "cmsutil", "stores"), nil
	default:
		return "", fmt.Errorf("unknown store kind %q", kind)
	}
}

// StorePath returns the database path for a named store of a kind.
func (c *Config) StorePath(kind Kind, name string) (string, error) {
	root, err := c.Root(kind)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name+".db"), nil
}
