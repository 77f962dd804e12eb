// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg locates the visitor configuration file under the XDG base
// directories.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName    = "visitor"
	configName = "config.yaml"
)

// ConfigDir returns the visitor config directory.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the path of the per-user config file, whether or not
// it exists.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), configName)
}

// FindConfigFile returns the first existing config file among the per-user
// file and the entries of XDG_CONFIG_DIRS (default /etc/xdg). It returns ""
// when none exists.
func FindConfigFile() (string, error) {
	candidates := []string{ConfigFile()}
	dirs := os.Getenv("XDG_CONFIG_DIRS")
	if dirs == "" {
		dirs = "/etc/xdg"
	}
	for _, dir := range filepath.SplitList(dirs) {
		if dir != "" {
			candidates = append(candidates, filepath.Join(dir, appName, configName))
		}
	}

	for _, path := range candidates {
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return path, nil
		case err == nil, errors.Is(err, fs.ErrNotExist):
			continue
		default:
			return "", oops.Code("CONFIG_STAT_FAILED").With("path", path).Wrap(err)
		}
	}
	return "", nil
}
