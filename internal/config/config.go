// Package config loads the llpm configuration: built-in defaults, then
// the user file, then LLPM_* environment variables.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/goplus/llpm/internal/errs"
	llpmenv "github.com/goplus/llpm/internal/env"
	"github.com/goplus/llpm/internal/packageid"
	"github.com/goplus/llpm/internal/remote"
	"github.com/goplus/llpm/recipe"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// EnvPrefix starts the environment variables read by Load. A double
// underscore separates nested keys: LLPM_RETRY__COUNT sets retry.count.
const EnvPrefix = "LLPM_"

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Config is the llpm configuration.
type Config struct {
	Home               string          `koanf:"home"`
	Jobs               int             `koanf:"jobs"`
	LockTimeout        time.Duration   `koanf:"lock_timeout"`
	ResolvePrereleases bool            `koanf:"resolve_prereleases"`
	PackageID          PackageIDConfig `koanf:"package_id"`
	Retry              RetryConfig     `koanf:"retry"`
	Remotes            []RemoteConfig  `koanf:"remotes"`
}

// PackageIDConfig holds the default package id modes.
type PackageIDConfig struct {
	DefaultMode string `koanf:"default_mode"`
	BuildMode   string `koanf:"build_mode"`
}

// RetryConfig bounds the retries of remote reads.
type RetryConfig struct {
	Count   int           `koanf:"count"`
	Backoff time.Duration `koanf:"backoff"`
}

// RemoteConfig declares a remote. Remotes are consulted in the order
// they are declared.
type RemoteConfig struct {
	Name      string `koanf:"name"`
	URL       string `koanf:"url"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Region    string `koanf:"region"`
}

// Load reads the configuration. An empty path means the default user
// file; a missing user file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Built-in defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. User file
	if path == "" {
		path = llpmenv.ConfigFile()
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errs.Wrap(errs.Parse, "", fmt.Errorf("failed to load config from %s: %w", path, err))
		}
	}

	// 3. Environment
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, "", fmt.Errorf("failed to unmarshal configuration: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values Load cannot type-check. Failures are
// errs.InvalidConfig.
func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return errs.New(errs.InvalidConfig, "", "jobs must not be negative, got %d", c.Jobs)
	}
	if c.Retry.Count < 0 {
		return errs.New(errs.InvalidConfig, "", "retry.count must not be negative, got %d", c.Retry.Count)
	}
	if _, err := c.Modes(); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, r := range c.Remotes {
		if r.Name == "" || r.URL == "" {
			return errs.New(errs.InvalidConfig, "", "remote #%d needs a name and a url", i+1)
		}
		if seen[r.Name] {
			return errs.New(errs.InvalidConfig, "", "remote %s declared twice", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// Modes returns the configured package id modes.
func (c *Config) Modes() (packageid.Modes, error) {
	m := packageid.Modes{Default: recipe.Mode(c.PackageID.DefaultMode), Build: recipe.Mode(c.PackageID.BuildMode)}
	return m, m.Validate()
}

// HomeDir returns the cache root, creating it if needed.
func (c *Config) HomeDir() (string, error) {
	if c.Home != "" {
		if err := os.MkdirAll(c.Home, 0700); err != nil {
			return "", err
		}
		return c.Home, nil
	}
	return llpmenv.Home()
}

// OpenRemotes opens the declared remotes, in order.
func (c *Config) OpenRemotes() ([]remote.Remote, error) {
	retry := remote.WithRetry(remote.Retry{Count: c.Retry.Count, Backoff: c.Retry.Backoff})
	var out []remote.Remote
	for _, r := range c.Remotes {
		rm, err := remote.Open(remote.Config{
			Name:      r.Name,
			URL:       r.URL,
			AccessKey: r.AccessKey,
			SecretKey: r.SecretKey,
			Region:    r.Region,
		}, retry)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, nil
}

// Remote returns the remote named name.
func (c *Config) Remote(name string) (remote.Remote, error) {
	remotes, err := c.OpenRemotes()
	if err != nil {
		return nil, err
	}
	for _, r := range remotes {
		if r.Name() == name {
			return r, nil
		}
	}
	return nil, errs.New(errs.InvalidConfig, "", "no remote named %q", name)
}
