package store

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"portshare/internal/tunnel"
)

// SessionFile is the file name under the data dir.
const SessionFile = "session.yaml"

// Session is the outcome of the last serve run: what was shared and where.
type Session struct {
	UpdatedAt time.Time        `yaml:"updated_at"`
	Port      int              `yaml:"port"`
	Resource  string           `yaml:"resource"`
	Link      string           `yaml:"link"`
	Addresses []tunnel.Address `yaml:"addresses"`
}

// SessionPath joins dataDir and SessionFile.
func SessionPath(dataDir string) string {
	return filepath.Join(dataDir, SessionFile)
}

// LoadSession loads the session from disk. If the file is missing, returns an empty session.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Session{}, nil
		}
		return nil, err
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// SaveSession writes the session to disk.
func SaveSession(path string, s *Session) error {
	if s == nil {
		return nil
	}
	s.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
