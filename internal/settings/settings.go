// Package settings loads process-level bootstrap settings: where data lives,
// which index backend to use and how to log. Storage credentials are not
// settings; they belong to the config store.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Index backends.
const (
	IndexFile     = "file"
	IndexPostgres = "postgres"
	IndexMySQL    = "mysql"
)

// Settings is the bootstrap document (imgbed.yaml).
type Settings struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	ConfigPath string `yaml:"config_path"`
	BaseURL    string `yaml:"base_url"`

	// ConfigKey seals secrets in the config document. Usually supplied by
	// IMGBED_CONFIG_KEY rather than written to the file.
	ConfigKey string `yaml:"config_key"`

	Log   LogSettings   `yaml:"log"`
	Index IndexSettings `yaml:"index"`
	Relay RelaySettings `yaml:"relay"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type IndexSettings struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type RelaySettings struct {
	APIBase string `yaml:"api_base"`
}

// Default returns the settings used when no file is present.
func Default() *Settings {
	return &Settings{
		ListenAddr: ":8080",
		DataDir:    "data",
		BaseURL:    "http://localhost:8080",
		Log:        LogSettings{Level: "info", Format: "json"},
		Index:      IndexSettings{Backend: IndexFile},
		Relay:      RelaySettings{APIBase: "https://api.telegram.org"},
	}
}

// Load reads path (a missing file is not an error), then applies a .env file
// from the working directory if present, then IMGBED_* environment variables.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("failed to parse settings file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()
	s.applyEnv(os.LookupEnv)

	s.fillDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) {
	for key, dst := range map[string]*string{
		"IMGBED_LISTEN_ADDR":    &s.ListenAddr,
		"IMGBED_DATA_DIR":       &s.DataDir,
		"IMGBED_CONFIG_PATH":    &s.ConfigPath,
		"IMGBED_BASE_URL":       &s.BaseURL,
		"IMGBED_CONFIG_KEY":     &s.ConfigKey,
		"IMGBED_LOG_LEVEL":      &s.Log.Level,
		"IMGBED_LOG_FORMAT":     &s.Log.Format,
		"IMGBED_INDEX_BACKEND":  &s.Index.Backend,
		"IMGBED_INDEX_DSN":      &s.Index.DSN,
		"IMGBED_RELAY_API_BASE": &s.Relay.APIBase,
	} {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
}

func (s *Settings) fillDefaults() {
	d := Default()
	if s.DataDir == "" {
		s.DataDir = d.DataDir
	}
	if s.ConfigPath == "" {
		s.ConfigPath = filepath.Join(s.DataDir, "storage-config.json")
	}
	if s.Index.Backend == "" {
		s.Index.Backend = IndexFile
	}
	s.Index.Backend = strings.ToLower(s.Index.Backend)
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
}

// Validate checks cross-field constraints.
func (s *Settings) Validate() error {
	switch s.Index.Backend {
	case IndexFile:
	case IndexPostgres, IndexMySQL:
		if s.Index.DSN == "" {
			return fmt.Errorf("index backend %q requires index.dsn", s.Index.Backend)
		}
	default:
		return fmt.Errorf("unknown index backend %q", s.Index.Backend)
	}
	return nil
}

// IndexPath returns the file backing a driver's index when the file backend
// is in use.
func (s *Settings) IndexPath(driver string) string {
	return filepath.Join(s.DataDir, driver+"-index.json")
}
