// Package config provides the settings of vnetns itself, read from a YAML
// file in the invoking user's configuration directory.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"vnetns/privilege"
)

const (
	// AppDirName is the directory of vnetns below the user's config dir.
	AppDirName = "vnetns"
	// LocksDirName is the lock registry directory below AppDirName.
	LocksDirName = "locks"
	// FileName is the name of the configuration file in AppDirName.
	FileName = "config.yaml"

	BackendNetlink  = "netlink"
	BackendIPRoute2 = "iproute2"
)

// Config represents the vnetns configuration.
type Config struct {
	// RegistryRoot is the lock registry directory. Empty means the locks
	// directory in the user's vnetns config directory.
	RegistryRoot string `yaml:"registry_root"`
	// Backend selects how interfaces and namespaces are inspected:
	// "netlink" (default) or "iproute2".
	Backend string `yaml:"backend"`
	// NamespacePrefix restricts garbage collection to namespaces whose names
	// start with it. Empty means all named namespaces.
	NamespacePrefix string `yaml:"namespace_prefix"`
	// SettleDelay is the pause after sweeping dead locks.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:     BackendNetlink,
		SettleDelay: time.Second,
	}
}

// BaseDir returns the configuration base directory of the given user. When
// running through sudo the environment still is the invoking user's, but
// $HOME may already point to root, so the user's home is used instead.
func BaseDir(id *privilege.Identity) string {
	if !id.Elevated {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return xdg
		}
	}
	return filepath.Join(id.Home, ".config")
}

// AppDir returns the vnetns directory of the given user.
func AppDir(id *privilege.Identity) string {
	return filepath.Join(BaseDir(id), AppDirName)
}

// DefaultPath returns the configuration file of the given user.
func DefaultPath(id *privilege.Identity) string {
	return filepath.Join(AppDir(id), FileName)
}

// Load reads the configuration at path. A missing file yields the default
// configuration. The registry root defaults to the user's locks directory.
func Load(path string, id *privilege.Identity) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("error opening configuration: %w", err)
	default:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("error parsing configuration %s: %w", path, err)
		}
	}

	if cfg.RegistryRoot == "" {
		cfg.RegistryRoot = filepath.Join(AppDir(id), LocksDirName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration after file values or command line
// overrides have been set, filling in the default backend.
func (c *Config) Validate() error {
	if err := c.check(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) check() error {
	switch c.Backend {
	case "":
		c.Backend = BackendNetlink
	case BackendNetlink, BackendIPRoute2:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("negative settle delay %s", c.SettleDelay)
	}
	if !filepath.IsAbs(c.RegistryRoot) {
		return fmt.Errorf("registry root %q is not absolute", c.RegistryRoot)
	}
	return nil
}
