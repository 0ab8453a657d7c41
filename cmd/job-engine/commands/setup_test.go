package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuvla/job-engine-sub001/config"
)

func withConfigFile(t *testing.T, content string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), config.DefaultFilePermissions))
	previous := ConfigPath
	ConfigPath = path
	t.Cleanup(func() {
		ConfigPath = previous
		settings = nil
	})
}

func TestSetupAppliesFlagOverrides(t *testing.T) {
	withConfigFile(t, `
name = "from-file"

[executor]
workers = 2
`)
	cmd := &cobra.Command{Use: "executor"}
	cmd.Flags().AddFlagSet(ExecutorCmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--workers", "6"}))

	require.NoError(t, Setup(cmd, 0))
	assert.Equal(t, 6, settings.Executor.Workers)
	assert.Equal(t, "from-file", settings.Name)
}

func TestSetupRejectsInvalidOverride(t *testing.T) {
	withConfigFile(t, `name = "x"`)
	cmd := &cobra.Command{Use: "executor"}
	cmd.Flags().IntP("workers", "w", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"-w", "0"}))

	err := Setup(cmd, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor.workers")
}

func TestSetupSkipsVersion(t *testing.T) {
	ConfigPath = filepath.Join(t.TempDir(), "missing.toml")
	t.Cleanup(func() { ConfigPath = "" })
	require.NoError(t, Setup(&cobra.Command{Use: "version"}, 0))
}

func TestConfigShowRedactsSecret(t *testing.T) {
	withConfigFile(t, `
[api]
key = "credential/1"
secret = "hunter2"
`)
	require.NoError(t, Setup(configShowCmd, 0))

	var out bytes.Buffer
	configShowCmd.SetOut(&out)
	require.NoError(t, configShowCmd.RunE(configShowCmd, nil))
	assert.Contains(t, out.String(), "credential/1")
	assert.NotContains(t, out.String(), "hunter2")
}

func TestVersionJSON(t *testing.T) {
	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	require.NoError(t, VersionCmd.Flags().Set("json", "true"))
	t.Cleanup(func() { _ = VersionCmd.Flags().Set("json", "false") })

	require.NoError(t, VersionCmd.RunE(VersionCmd, nil))
	assert.Contains(t, out.String(), `"version"`)
}
