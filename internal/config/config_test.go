package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", s.Server.Port)
	assert.Equal(t, int64(10<<20), s.Server.MaxUploadBytes)
	assert.Equal(t, "models/model.onnx", s.Model.Path)
	assert.Equal(t, 30*time.Minute, s.Session.TTL)
	assert.True(t, s.Workflow.RecoverOnFailure)
	assert.Equal(t, "info", s.Log.Level)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waste.yaml")
	content := []byte(`
server:
  port: "9090"
workflow:
  recoveronfailure: false
session:
  ttl: 5m
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("WASTE_LOG_LEVEL", "debug")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", s.Server.Port)
	assert.False(t, s.Workflow.RecoverOnFailure)
	assert.Equal(t, 5*time.Minute, s.Session.TTL)
	assert.Equal(t, "debug", s.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := &Settings{}
	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "session.ttl")
}
