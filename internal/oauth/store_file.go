package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileStore persists the full {key: credential} map to a single JSON
// file, read-modify-write on every write. No cross-process locking is
// required — the login flow is the sole writer and is user-initiated, as
// specified. An in-process mutex serializes concurrent writers within
// this one running proxy.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed credential store at path (typically
// "<cwd>/.auth_data.json").
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) readAll() (map[string]*Credential, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Credential{}, nil
		}
		return map[string]*Credential{}, nil // read errors return "not found", per spec
	}
	var m map[string]*Credential
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]*Credential{}, nil
	}
	if m == nil {
		m = map[string]*Credential{}
	}
	return m, nil
}

func (f *FileStore) writeAll(m map[string]*Credential) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("oauth: marshal credential file: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("oauth: write credential file: %w", err)
	}
	return nil
}

func (f *FileStore) Get(_ context.Context, key string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, _ := f.readAll()
	return m[key], nil
}

func (f *FileStore) Set(_ context.Context, key string, cred *Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, _ := f.readAll()
	m[key] = cred
	return f.writeAll(m)
}

func (f *FileStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, _ := f.readAll()
	delete(m, key)
	return f.writeAll(m)
}

func (f *FileStore) GetAll(_ context.Context) (map[string]*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readAll()
}
