package salt

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meridian-icu/registry/pkg/common/logger"
)

// Store holds the process-wide hashing salt. The salt is generated once,
// kept outside version control, and must be identical across every run
// that needs surrogate-ID continuity. It is passed explicitly to the
// resolver constructor; nothing reads it ambiently.
type Store struct {
	path  string
	value string
}

const saltBytes = 32

// Load reads the salt file if it exists, otherwise generates a new salt
// and writes it with owner-only permissions. Any failure here is fatal for
// the whole pipeline: running with a wrong or missing salt would silently
// orphan every historical surrogate ID.
func Load(path string) (*Store, error) {
	content, err := os.ReadFile(path)
	if err == nil {
		value := strings.TrimSpace(string(content))
		if value == "" {
			return nil, fmt.Errorf("salt file %s is empty", path)
		}
		return &Store{path: path, value: value}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading salt file %s: %w", path, err)
	}

	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	value := hex.EncodeToString(raw)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating salt directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return nil, fmt.Errorf("writing salt file %s: %w", path, err)
	}

	logger.WithField("path", path).Info("Created new hashing salt")
	return &Store{path: path, value: value}, nil
}

// Value returns the salt token.
func (s *Store) Value() string {
	return s.value
}

// Path returns where the salt is persisted, for audit logging only.
func (s *Store) Path() string {
	return s.path
}
