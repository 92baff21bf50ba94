// Package config loads the process bootstrap configuration described in
// spec.md §6, following the teacher's plain-JSON-file-plus-env-override
// idiom (pkg/config/config.go): a small typed struct, a fixed file under
// a dotfile-style base directory, and a separate identity file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the per-deployment bootstrap configuration (spec.md §6's
// bootstrap sequence: config file, ring storage, cluster bus address).
type Config struct {
	ClusterBusAddr  string   `json:"cluster_bus_addr"`
	StateDir        string   `json:"state_dir"`
	Rings           []string `json:"rings"`
	RefreshInterval int      `json:"refresh_interval_seconds"`
}

func baseDir() string { return "./schemat" }

// Path returns the config file location. spec.md §6 names the default
// as "./schemat/config.yaml"; kept as a plain JSON document under that
// name, matching the teacher's no-extra-dependency config idiom rather
// than pulling in a YAML library for a file-format detail only (see
// DESIGN.md).
func Path() string { return filepath.Join(baseDir(), "config.yaml") }

// NodeIDPath returns the persisted node identity file (spec.md §6:
// "./schemat/node.id").
func NodeIDPath() string { return filepath.Join(baseDir(), "node.id") }

func Load() (*Config, error) {
	b, err := os.ReadFile(Path())
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", Path(), err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", Path(), err)
	}
	return &c, nil
}

func Save(c *Config) error {
	if err := os.MkdirAll(baseDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(), b, 0o600)
}

func (c *Config) Validate() error {
	if c.RefreshInterval <= 0 {
		return errors.New("config: refresh_interval_seconds must be positive")
	}
	if len(c.Rings) == 0 {
		return errors.New("config: at least one ring must be configured")
	}
	for _, name := range c.Rings {
		if strings.TrimSpace(name) == "" {
			return errors.New("config: ring names must not be blank")
		}
	}
	return nil
}

// WorkerID resolves the process's worker id from the WORKER_ID
// environment variable (spec.md §6): an integer, 0 identifies the
// master.
func WorkerID() (int, error) {
	v := strings.TrimSpace(os.Getenv("WORKER_ID"))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: WORKER_ID must be an integer, got %q", v)
	}
	return id, nil
}

// LoadOrInitNodeID reads the persisted node id, generating and saving a
// fresh one via newID on first run.
func LoadOrInitNodeID(newID func() string) (string, error) {
	b, err := os.ReadFile(NodeIDPath())
	if err == nil {
		return strings.TrimSpace(string(b)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("config: read %s: %w", NodeIDPath(), err)
	}
	id := newID()
	if err := os.MkdirAll(baseDir(), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(NodeIDPath(), []byte(id), 0o600); err != nil {
		return "", err
	}
	return id, nil
}
