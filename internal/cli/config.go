package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrProfileNotFound is returned when a named profile is not configured.
var ErrProfileNotFound = errors.New("profile not found")

// Config is the CLI profile file.
type Config struct {
	DefaultProfile string             `yaml:"default_profile,omitempty"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile points the CLI at a running server.
type Profile struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// ConfigPath returns the profile file path. CCL_CONFIG overrides the
// default ~/.ccl/config.yaml.
func ConfigPath() (string, error) {
	if p := os.Getenv("CCL_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ccl", "config.yaml"), nil
}

// LoadConfig reads the profile file. A missing file is an empty config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Profiles: make(map[string]Profile)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	return &cfg, nil
}

// SaveConfig writes cfg with owner-only permissions.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ResolveOptions are the connection settings given on the command line.
type ResolveOptions struct {
	Profile string
	BaseURL string
	APIKey  string
	// Getenv reads CCL_BASE_URL and CCL_API_KEY. Nil means os.Getenv.
	Getenv func(string) string
}

// ResolveProfile picks the server to talk to.
// Priority: flags > environment variables > profile file.
// It returns nil when no server is configured, which means the CLI
// evaluates locally.
func ResolveProfile(cfg *Config, opts ResolveOptions) (*Profile, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var p Profile
	name := opts.Profile
	if name == "" && cfg != nil {
		name = cfg.DefaultProfile
	}
	if name != "" {
		var ok bool
		if cfg != nil {
			p, ok = cfg.Profiles[name]
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
		}
	}

	if v := getenv("CCL_BASE_URL"); v != "" {
		p.BaseURL = v
	}
	if v := getenv("CCL_API_KEY"); v != "" {
		p.APIKey = v
	}
	if opts.BaseURL != "" {
		p.BaseURL = opts.BaseURL
	}
	if opts.APIKey != "" {
		p.APIKey = opts.APIKey
	}

	if p.BaseURL == "" {
		if name != "" {
			return nil, fmt.Errorf("base_url must be configured for profile %q", name)
		}
		return nil, nil
	}
	return &p, nil
}

// MaskKey hides all but the first four characters of an API key.
func MaskKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "***"
	}
	if key == "" {
		return ""
	}
	return "***"
}
