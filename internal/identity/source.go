// Package identity tells the rest of encore who is listening. It does not
// authenticate anyone; it only stores and reports the current identity.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tessro/encore/internal/core"
)

// DefaultFileName is the name of the identity file inside the data directory.
const DefaultFileName = "identity.json"

// Source reports the current identity.
type Source interface {
	Current(ctx context.Context) (core.Identity, error)
}

// Static is a Source that always reports the same identity.
type Static core.Identity

// Current returns the static identity, or guest when blank.
func (s Static) Current(ctx context.Context) (core.Identity, error) {
	return core.NormalizeIdentity(string(s)), nil
}

type fileData struct {
	Identity  string    `json:"identity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileSource persists the identity as JSON so every encore process on the
// machine shares it.
type FileSource struct {
	path string
	mu   sync.Mutex
}

// NewFileSource creates a file source at path. An empty path uses
// ~/.config/encore/identity.json.
func NewFileSource(path string) (*FileSource, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(configDir, "encore", DefaultFileName)
	}
	return &FileSource{path: path}, nil
}

// Path returns the identity file path.
func (s *FileSource) Path() string {
	return s.path
}

// Current reads the identity file. A missing file means guest.
func (s *FileSource) Current(ctx context.Context) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Guest, nil
		}
		return core.Guest, fmt.Errorf("failed to read identity file: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return core.Guest, fmt.Errorf("failed to parse identity file: %w", err)
	}
	return core.NormalizeIdentity(fd.Identity), nil
}

// Set stores id as the current identity. Setting guest removes the file.
func (s *FileSource) Set(id core.Identity) error {
	id = core.NormalizeIdentity(string(id))
	if id.IsGuest() {
		return s.Clear()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(fileData{Identity: id.String(), UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	return nil
}

// Clear signs out, making the identity guest.
func (s *FileSource) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete identity file: %w", err)
	}
	return nil
}
