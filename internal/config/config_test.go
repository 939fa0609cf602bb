package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no dockersmoke.yaml is
// picked up by accident.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("USER", "alice")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"7474", "7687"}, cfg.Ports)
	assert.Equal(t, LoaderAPI, cfg.Loader)
	assert.True(t, cfg.Preflight)
	assert.Equal(t, "Started.", cfg.Wait.Pattern)
	assert.Equal(t, 2*time.Minute, cfg.Wait.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Wait.PollInterval)
	assert.Equal(t, 7474, cfg.Probe.Port)
	assert.Equal(t, 200, cfg.Probe.Status)
	assert.Equal(t, "alice", cfg.User)
}

func TestLoadEnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("DOCKERSMOKE_WAIT_TIMEOUT", "45s")
	t.Setenv("DOCKERSMOKE_PROBE_PORT", "8080")
	t.Setenv("DOCKERSMOKE_LOADER", "podman")
	t.Setenv("DOCKERSMOKE_ARCHIVE", "/tmp/image.tar")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Wait.Timeout)
	assert.Equal(t, 8080, cfg.Probe.Port)
	assert.Equal(t, LoaderPodman, cfg.Loader)
	assert.Equal(t, "/tmp/image.tar", cfg.Archive)
}

func TestLoadConfigFile(t *testing.T) {
	dir := inTempDir(t)
	yaml := `
archive: neo4j.tar
ports: ["8080/tcp"]
wait:
  pattern: 'Listening on :\d+'
  regexp: true
  timeout: 30s
probe:
  port: 8080
  path: /healthz
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dockersmoke.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "neo4j.tar", cfg.Archive)
	assert.Equal(t, []string{"8080/tcp"}, cfg.Ports)
	assert.True(t, cfg.Wait.Regexp)
	assert.Equal(t, `Listening on :\d+`, cfg.Wait.Pattern)
	assert.Equal(t, 30*time.Second, cfg.Wait.Timeout)
	assert.Equal(t, "/healthz", cfg.Probe.Path)
	assert.Equal(t, "localhost", cfg.Probe.Host, "unset keys keep defaults")
}

func TestLoadExplicitFileMissing(t *testing.T) {
	dir := inTempDir(t)
	_, err := Load(New(), filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	inTempDir(t)

	t.Run("bad loader", func(t *testing.T) {
		t.Setenv("DOCKERSMOKE_LOADER", "nerdctl")
		_, err := Load(New(), "")
		assert.ErrorContains(t, err, "invalid loader")
	})

	t.Run("zero timeout", func(t *testing.T) {
		t.Setenv("DOCKERSMOKE_WAIT_TIMEOUT", "0s")
		_, err := Load(New(), "")
		assert.ErrorContains(t, err, "wait.timeout")
	})
}
