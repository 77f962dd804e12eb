// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.Subset(t, names, []string{"serve", "migrate", "invite"})
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{name: "separate value", args: []string{"--config", "/path/to/config.yaml", "--help"}, wantFlag: "/path/to/config.yaml"},
		{name: "equals form", args: []string{"--config=/etc/visitor.yaml", "--help"}, wantFlag: "/etc/visitor.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { configFile = "" })
			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestServeCommand_Flags(t *testing.T) {
	cmd := NewServeCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	for _, flag := range []string{"--addr", "--prefix", "--metrics-addr", "--log-format", "--store", "--mail", "--base-url", "--session-sweep", "--shutdown-timeout"} {
		assert.Contains(t, buf.String(), flag)
	}
}

func TestLoadConfig_ValidatesResult(t *testing.T) {
	t.Setenv("VISITOR_SECRET_KEY", "")
	cmd := NewServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--store", "memory"}))

	_, err := loadConfig(cmd)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "VISITOR_SECRET_KEY")
}

func TestConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("XDG_CONFIG_DIRS", t.TempDir())

	path, err := configPath()
	require.NoError(t, err)
	assert.Empty(t, path, "no config file present")

	require.NoError(t, os.MkdirAll(filepath.Join(home, "visitor"), 0o700))
	want := filepath.Join(home, "visitor", "config.yaml")
	require.NoError(t, os.WriteFile(want, []byte("log:\n  format: text\n"), 0o600))

	path, err = configPath()
	require.NoError(t, err)
	assert.Equal(t, want, path)

	configFile = "/explicit.yaml"
	t.Cleanup(func() { configFile = "" })
	path, err = configPath()
	require.NoError(t, err)
	assert.Equal(t, "/explicit.yaml", path)
}
