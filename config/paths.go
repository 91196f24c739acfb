// Package config composes kong CLI parsing with JSON/YAML/TOML
// configuration file loading and a hot-reloadable runtime store.
// Grounded on cmd/viiper/viiper.go's kong.Configuration chain and
// internal/configpaths/files.go's candidate-path search.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDir returns the platform configuration directory for appcd.
func DefaultDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, "appc-daemon"), nil
		}
		return "", os.ErrNotExist
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "appc-daemon"), nil
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".config", "appc-daemon"), nil
		}
		return "", os.ErrNotExist
	}
}

// CandidatePaths builds the JSON/YAML/TOML search lists kong.Configuration
// consumes, prioritizing an explicit userPath when given.
func CandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(slice *[]string, p string) { *slice = append(*slice, p) }

	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			add(&yamlPaths, userPath)
		case ".toml":
			add(&tomlPaths, userPath)
		default:
			add(&jsonPaths, userPath)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		add(&jsonPaths, filepath.Join(wd, "appcd.json"))
		add(&yamlPaths, filepath.Join(wd, "appcd.yaml"))
		add(&tomlPaths, filepath.Join(wd, "appcd.toml"))
	}

	if dir, err := DefaultDir(); err == nil {
		add(&jsonPaths, filepath.Join(dir, "config.json"))
		add(&yamlPaths, filepath.Join(dir, "config.yaml"))
		add(&tomlPaths, filepath.Join(dir, "config.toml"))
	}

	return
}
