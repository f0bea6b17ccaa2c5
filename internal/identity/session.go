package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SessionStore keeps the session token between runs.
type SessionStore interface {
	// Load returns the saved token, or "" when there is none.
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileSession stores the token in a file readable only by the owner.
type FileSession struct {
	path string
}

func NewFileSession(path string) *FileSession {
	return &FileSession{path: path}
}

func (f *FileSession) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileSession) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (f *FileSession) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// MemorySession keeps the token for the life of the process.
type MemorySession struct {
	token string
}

func (m *MemorySession) Load() (string, error) { return m.token, nil }
func (m *MemorySession) Save(token string) error {
	m.token = token
	return nil
}
func (m *MemorySession) Clear() error {
	m.token = ""
	return nil
}
