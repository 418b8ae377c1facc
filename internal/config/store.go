package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/koustreak/imgbed/internal/fsutil"
	"github.com/koustreak/imgbed/internal/logger"
)

// Result reports the outcome of Save. Save never returns a Go error; callers
// show Message to the user.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Store reads and writes the config document. Every read goes to disk so
// edits made by another process or an earlier Save are always observed.
// Concurrent Saves within one process are serialized; across processes the
// last writer wins.
type Store struct {
	path   string
	cipher *Cipher // nil stores secrets in clear
	log    *logger.Logger
	mu     sync.Mutex
}

// NewStore returns a Store for path. A nil cipher keeps secrets in clear text.
func NewStore(path string, c *Cipher, log *logger.Logger) *Store {
	return &Store{
		path:   path,
		cipher: c,
		log:    logger.OrNop(log).Component("config"),
	}
}

// OpenStore builds a Store whose cipher is derived from keyMaterial, or from
// a key file next to path ("<path>.key") when keyMaterial is empty.
func OpenStore(path, keyMaterial string, log *logger.Logger) (*Store, error) {
	if keyMaterial == "" {
		var err error
		keyMaterial, err = LoadOrCreateKey(path + ".key")
		if err != nil {
			return nil, fmt.Errorf("config key: %w", err)
		}
	}
	c, err := NewCipher(keyMaterial)
	if err != nil {
		return nil, err
	}
	return NewStore(path, c, log), nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the document and opens sealed secrets. A missing or malformed
// file yields Default(); Load never fails.
func (s *Store) Load() GlobalConfig {
	cfg, err := s.read()
	if err != nil {
		s.log.WarnWith("config malformed, using defaults", err, map[string]interface{}{"path": s.path})
		return Default()
	}
	return cfg
}

// read is Load without the fallback for a document that exists but does not
// decode.
func (s *Store) read() (GlobalConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.WarnWith("config unreadable, using defaults", err, map[string]interface{}{"path": s.path})
		}
		return Default(), nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return GlobalConfig{}, err
	}

	s.openSecrets(&cfg)
	return cfg, nil
}

// Full is the unmasked view; it re-reads the file on every call.
func (s *Store) Full() GlobalConfig {
	return s.Load()
}

// Masked is the view for callers not allowed to see secrets.
func (s *Store) Masked() GlobalConfig {
	return s.Load().Masked()
}

// Save applies update to the current document and writes it atomically.
func (s *Store) Save(update Update) Result {
	if update == nil {
		return Result{Success: false, Message: "empty update"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Overwriting a malformed file would drop whatever secrets it holds.
	current, err := s.read()
	if err != nil {
		s.log.ErrorWith("config save refused", err, map[string]interface{}{"path": s.path})
		return Result{Success: false, Message: "existing configuration is malformed; fix or remove " + s.path}
	}
	next := current.clone()
	if err := update.apply(&next); err != nil {
		s.log.WarnWith("config update rejected", err, map[string]interface{}{"update": update.kind()})
		return Result{Success: false, Message: err.Error()}
	}
	next.rehydrate(&current)

	if err := s.write(next); err != nil {
		s.log.ErrorWith("config save failed", err, map[string]interface{}{"path": s.path})
		return Result{Success: false, Message: "failed to save configuration: " + err.Error()}
	}

	s.log.InfoWith("config saved", map[string]interface{}{"update": update.kind()})
	return Result{Success: true, Message: "configuration saved"}
}

func (s *Store) write(cfg GlobalConfig) error {
	sealed := cfg.clone()
	if s.cipher != nil {
		for _, secret := range sealed.secrets() {
			// Already-sealed values are ones we could not open; keep them as is.
			if *secret == "" || IsSealed(*secret) {
				continue
			}
			v, err := s.cipher.Seal(*secret)
			if err != nil {
				return fmt.Errorf("seal secret: %w", err)
			}
			*secret = v
		}
	}

	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.path, append(data, '\n'), 0o600)
}

func (s *Store) openSecrets(cfg *GlobalConfig) {
	for _, secret := range cfg.secrets() {
		if !IsSealed(*secret) {
			continue
		}
		if s.cipher == nil {
			s.log.Warn("config holds sealed secrets but no key is configured")
			continue
		}
		plain, err := s.cipher.Open(*secret)
		if err != nil {
			// Keep the sealed value so a later Save does not erase it.
			s.log.WarnWith("could not open sealed secret", err, nil)
			continue
		}
		*secret = plain
	}
}
