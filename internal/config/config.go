// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package config handles scrap.toml project configuration.
package config

import (
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"nickandperla.net/scrap/internal/errwrap"
)

// FileName is the name of the configuration file.
const FileName = "scrap.toml"

// Config represents a scrap.toml file.
type Config struct {
	Store  Store  `toml:"store"`
	Remote Remote `toml:"remote"`
	REPL   REPL   `toml:"repl"`
	Log    Log    `toml:"log"`

	// Dir is the directory containing the file, or the starting directory
	// when no file was found.
	Dir string `toml:"-"`
}

// Store configures the object store. An empty Path keeps scraps in memory.
type Store struct {
	Path string `toml:"path"`
}

// Remote configures where missing scraps are fetched from. An empty URL
// disables fetching.
type Remote struct {
	URL     string   `toml:"url"`
	Timeout Duration `toml:"timeout"`
}

// REPL configures the interactive loop.
type REPL struct {
	History string `toml:"history"`
}

// Log configures logging. Verbosity follows commonlog: 0 is errors only.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Remote: Remote{Timeout: Duration{30 * time.Second}},
		REPL:   REPL{History: ".scrap-history"},
	}
}

// Load parses the scrap.toml file in dir.
func Load(fs afero.Fs, dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "cannot read %s", path)
	}

	c := Default()
	if _, err := toml.Decode(string(data), c); err != nil {
		return nil, errwrap.Wrapf(err, "parse error in %s", path)
	}
	c.Dir = dir
	return c, nil
}

// FindAndLoad walks up from startDir to find a scrap.toml file and loads
// it. When there is none it returns the defaults.
func FindAndLoad(fs afero.Fs, startDir string) (*Config, error) {
	start, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for dir := start; ; {
		exists, err := afero.Exists(fs, filepath.Join(dir, FileName))
		if err != nil {
			return nil, err
		}
		if exists {
			return Load(fs, dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	c := Default()
	c.Dir = start
	return c, nil
}

// Resolve returns path relative to the configuration directory. Empty and
// absolute paths are returned unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}
