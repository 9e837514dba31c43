// Package config loads the engine's administrator-facing defaults, in the
// teacher's own layered order: struct-tag defaults and GITDB_*
// environment variables (github.com/sethvargo/go-envconfig) first, then
// <repo>/.gitdb/config.toml (github.com/BurntSushi/toml) overlaid on top,
// so a value set in the file wins over the environment. Command-line flags
// override all of these and are applied by cmd/gitdb, outside this package.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/sethvargo/go-envconfig"
)

// Commit holds the default identity attached to commits this process
// writes, when a statement doesn't specify one.
type Commit struct {
	AuthorName  string `toml:"author_name" env:"AUTHOR_NAME, default=gitdb"`
	AuthorEmail string `toml:"author_email" env:"AUTHOR_EMAIL, default=gitdb@localhost"`
}

// Statement holds per-statement execution limits.
type Statement struct {
	Timeout time.Duration `toml:"timeout" env:"STATEMENT_TIMEOUT, default=30s"`
}

// Lock holds the single-writer advisory lock's acquire behavior.
type Lock struct {
	AcquireTimeout time.Duration `toml:"acquire_timeout" env:"LOCK_ACQUIRE_TIMEOUT, default=5s"`
}

// Cache holds sizes for the engine's in-process caches.
type Cache struct {
	ParseSize int `toml:"parse_size" env:"CACHE_PARSE_SIZE, default=512"`
}

// Server holds the optional admin/introspection HTTP surface's settings.
// AdminAddr empty (the default) means the server is never started.
type Server struct {
	AdminAddr string `toml:"admin_addr" env:"SERVER_ADMIN_ADDR"`
}

// Paths holds engine-local directory overrides, always resolved inside the
// repository root (an absolute value is joined under it too). These are the "administrator-supplied,
// potentially-relative" values StatsDBPath resolves with SecureJoin.
type Paths struct {
	StateDir string `toml:"state_dir" env:"STATE_DIR, default=.gitdb"`
}

// Config is the full set of layered defaults.
type Config struct {
	Commit    Commit    `toml:"commit" env:",prefix=GITDB_COMMIT_"`
	Statement Statement `toml:"statement" env:",prefix=GITDB_STATEMENT_"`
	Lock      Lock      `toml:"lock" env:",prefix=GITDB_LOCK_"`
	Cache     Cache     `toml:"cache" env:",prefix=GITDB_CACHE_"`
	Server    Server    `toml:"server" env:",prefix=GITDB_SERVER_"`
	Paths     Paths     `toml:"paths" env:",prefix=GITDB_PATHS_"`
}

// FileName is config.toml's name within the repository's engine-local
// state directory.
const FileName = "config.toml"

// Load builds a Config for the repository rooted at repoRoot: struct-tag
// defaults and GITDB_* environment overrides via envconfig.Process, then
// a TOML file at repoRoot/.gitdb/config.toml overlaid on top if present.
// A missing config file is not an error — every repository has defaults
// without one.
func Load(ctx context.Context, repoRoot string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: applying environment defaults: %w", err)
	}

	path := filepath.Join(repoRoot, ".gitdb", FileName)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: checking for %s: %w", path, err)
	}

	return &cfg, nil
}

// StateDir resolves this Config's state directory against repoRoot,
// guarding against an administrator-supplied Paths.StateDir that contains
// ".." segments or symlinks escaping the repository, the same defense the
// teacher's knotserver.git applies when joining its scan path to a
// caller-supplied repository name.
func (c *Config) StateDir(repoRoot string) (string, error) {
	dir, err := securejoin.SecureJoin(repoRoot, c.Paths.StateDir)
	if err != nil {
		return "", fmt.Errorf("config: resolving state directory: %w", err)
	}
	return dir, nil
}

// StatsDBPath resolves the sqlite row-count cache's path within the
// repository's state directory.
func (c *Config) StatsDBPath(repoRoot string) (string, error) {
	dir, err := c.StateDir(repoRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stats.db"), nil
}
