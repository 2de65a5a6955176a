// CLAUDE:SUMMARY Top-level yaml configuration: per-integration sections assembled into one file, secrets left to the environment.
// Package config loads the passerelle configuration file. Every integration
// owns its own section struct; this package only assembles them and applies
// server-level defaults. Secrets (tokens, passwords) never live in the
// file: binaries read them from the environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/passerelle/broker"
	"github.com/hazyhaar/passerelle/designfiles"
	"github.com/hazyhaar/passerelle/devops"
	"github.com/hazyhaar/passerelle/records"
	"github.com/hazyhaar/passerelle/wikisync"
)

// Config is the top-level passerelle configuration. Wiki and DevOps are
// the core and always present; the remaining integrations are pointers so
// that a section absent from the file stays nil and the server skips that
// client entirely.
type Config struct {
	Wiki        wikisync.Config     `yaml:"wiki"`
	DevOps      devops.Config       `yaml:"devops"`
	Records     *records.Config     `yaml:"records"`
	Broker      *broker.Config      `yaml:"broker"`
	DesignFiles *designfiles.Config `yaml:"designfiles"`
	Admin       AdminConfig         `yaml:"admin"`

	// AuditDB is the path of the SQLite audit trail.
	AuditDB string `yaml:"audit_db"`
}

// AdminConfig controls the admin HTTP listener.
type AdminConfig struct {
	// Addr is the listen address. Loopback by default; binding the admin
	// surface beyond the host is a deliberate decision.
	Addr string `yaml:"addr"`

	// PasswordHash is the bcrypt hash protecting the /api routes. Empty
	// means those routes refuse every request.
	PasswordHash string `yaml:"password_hash"`
}

func (c *Config) applyDefaults() {
	if c.Admin.Addr == "" {
		c.Admin.Addr = "127.0.0.1:8086"
	}
	if c.AuditDB == "" {
		c.AuditDB = "db/audit.db"
	}
}

// Load reads a YAML configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
