package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	s.valid = true
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "notes")
	path := writeFile(t, "name: ${SAMPLE_NAME}\nport: 8080\n")

	var cfg sample
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "notes", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.valid)
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, "port: 9000\n")

	cfg := sample{Name: "default"}
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, 9000, cfg.Port)
}

func TestLoad_Errors(t *testing.T) {
	var cfg sample

	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = Load(writeFile(t, "port: [unterminated"), &cfg)
	assert.ErrorContains(t, err, "failed to parse")

	err = Load(writeFile(t, "name: x\n"), &cfg)
	assert.ErrorContains(t, err, "port is required")
}
