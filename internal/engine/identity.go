package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Identity is the durable player identity handed out by the server in
// WELCOME. The reconnect token lets a fresh connection resume as the same
// player.
type Identity struct {
	PlayerID       string `json:"player_id"`
	ReconnectToken string `json:"reconnect_token"`
	Nickname       string `json:"nickname"`
}

// IdentityStore persists an Identity across process restarts. Load returns a
// zero Identity, not an error, when nothing has been saved yet.
type IdentityStore interface {
	Load() (Identity, error)
	Save(Identity) error
	Clear() error
}

// FileIdentityStore keeps the identity as a JSON file readable only by the
// owner.
type FileIdentityStore struct {
	path string
}

func NewFileIdentityStore(path string) *FileIdentityStore {
	return &FileIdentityStore{path: path}
}

func (s *FileIdentityStore) Load() (Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Identity{}, nil
	}
	if err != nil {
		return Identity{}, fmt.Errorf("read identity: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		// A corrupt identity file is treated as absent; the server will
		// issue a new player id.
		return Identity{}, nil
	}
	return id, nil
}

func (s *FileIdentityStore) Save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

func (s *FileIdentityStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryIdentityStore is an in-process store for tests.
type MemoryIdentityStore struct {
	mu sync.Mutex
	id Identity
	ok bool
}

func (s *MemoryIdentityStore) Load() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return Identity{}, nil
	}
	return s.id, nil
}

func (s *MemoryIdentityStore) Save(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.ok = id, true
	return nil
}

func (s *MemoryIdentityStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.ok = Identity{}, false
	return nil
}
