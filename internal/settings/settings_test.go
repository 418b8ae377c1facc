package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", s.ListenAddr)
	assert.Equal(t, IndexFile, s.Index.Backend)
	assert.Equal(t, filepath.Join("data", "storage-config.json"), s.ConfigPath)
	assert.Equal(t, filepath.Join("data", "r2-index.json"), s.IndexPath("r2"))
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "imgbed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/imgbed
base_url: https://img.example.com/
log:
  level: debug
index:
  backend: Postgres
  dsn: postgres://localhost/imgbed
`), 0o644))
	t.Setenv("IMGBED_LOG_LEVEL", "warn")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/imgbed", s.DataDir)
	assert.Equal(t, "https://img.example.com", s.BaseURL)
	assert.Equal(t, "warn", s.Log.Level, "env wins over file")
	assert.Equal(t, IndexPostgres, s.Index.Backend)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		body string
	}{
		{"malformed", "log: [\n"},
		{"unknown backend", "index:\n  backend: redis\n"},
		{"sql without dsn", "index:\n  backend: mysql\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "imgbed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
