package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/mygit/pkg/object"
)

const configFile = "config.toml"

const (
	envAuthorName  = "MYGIT_AUTHOR_NAME"
	envAuthorEmail = "MYGIT_AUTHOR_EMAIL"
)

// Config stores repository-local settings.
type Config struct {
	User UserConfig `toml:"user"`
	Core CoreConfig `toml:"core"`
}

type UserConfig struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type CoreConfig struct {
	Branch      string `toml:"branch"`
	Compression int    `toml:"compression"`
	LogLevel    string `toml:"log_level"`
}

// DefaultConfig returns the settings written by Init.
func DefaultConfig() *Config {
	return &Config{
		User: UserConfig{Name: "User", Email: "user@example.com"},
		Core: CoreConfig{
			Branch:      "master",
			Compression: zlib.DefaultCompression,
			LogLevel:    "warn",
		},
	}
}

// Identity returns the author/committer signature, with the environment
// taking precedence over the config file. The result is validated, so an
// override carrying a line break or angle bracket is reported here.
func (c *Config) Identity() (object.Signature, error) {
	sig := object.Signature{Name: c.User.Name, Email: c.User.Email}
	if v := strings.TrimSpace(os.Getenv(envAuthorName)); v != "" {
		sig.Name = v
	}
	if v := strings.TrimSpace(os.Getenv(envAuthorEmail)); v != "" {
		sig.Email = v
	}
	if err := sig.Validate(); err != nil {
		return object.Signature{}, fmt.Errorf("identity: %w", err)
	}
	return sig, nil
}

func (c *Config) validate() error {
	if err := object.ValidateEntryName(c.Core.Branch); err != nil {
		return fmt.Errorf("core.branch: %w", err)
	}
	if c.Core.Compression < zlib.HuffmanOnly || c.Core.Compression > zlib.BestCompression {
		return fmt.Errorf("core.compression: level %d out of range", c.Core.Compression)
	}
	if err := (object.Signature{Name: c.User.Name, Email: c.User.Email}).Validate(); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	return nil
}

// readConfig reads the TOML config at path. A missing file yields the
// defaults; keys absent from the file keep their default values.
func readConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// writeConfig atomically writes cfg as TOML.
func writeConfig(path string, cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// WriteConfig persists cfg to .mygit/config.toml and makes it current.
func (r *Repo) WriteConfig(cfg *Config) error {
	if err := writeConfig(filepath.Join(r.GitDir, configFile), cfg); err != nil {
		return err
	}
	store, err := object.NewStoreLevel(r.GitDir, cfg.Core.Compression)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	r.Config = cfg
	r.Store = store
	return nil
}
