package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// Store loads and persists stored ChatGPT credentials.
type Store interface {
	Load(ctx context.Context) (*AuthFile, error)
	Save(ctx context.Context, af *AuthFile) error
}

// Storage kinds accepted by NewStore.
const (
	StorageFile    = "file"
	StorageKeyring = "keyring"
)

// NewStore returns the credential store for the configured storage kind.
func NewStore(kind string) (Store, error) {
	switch kind {
	case "", StorageFile:
		return &FileStore{}, nil
	case StorageKeyring:
		return &KeyringStore{Service: DefaultKeyringService, User: DefaultKeyringUser}, nil
	default:
		return nil, fmt.Errorf("unknown auth storage %q", kind)
	}
}

// FileStore keeps credentials in auth.json. With an empty Dir it reads the
// first auth.json found in the known locations and writes to HomeDir.
type FileStore struct {
	Dir string
}

func (s *FileStore) Load(ctx context.Context) (*AuthFile, error) {
	dirs := searchDirs()
	if s.Dir != "" {
		dirs = []string{s.Dir}
	}
	for _, dir := range dirs {
		data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
		if err != nil {
			continue
		}
		var af AuthFile
		if err := json.Unmarshal(data, &af); err != nil {
			continue
		}
		return &af, nil
	}
	return nil, ErrNoCredentials
}

// Save writes auth.json with 0600 permissions.
func (s *FileStore) Save(ctx context.Context, af *AuthFile) error {
	dir := s.Dir
	if dir == "" {
		dir = HomeDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create auth home directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(af, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0o600)
}

const (
	DefaultKeyringService = "claude-chatmock"
	DefaultKeyringUser    = "chatgpt"
)

// KeyringStore keeps the auth.json document in the OS keyring.
type KeyringStore struct {
	Service string
	User    string
}

func (s *KeyringStore) Load(ctx context.Context) (*AuthFile, error) {
	secret, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	var af AuthFile
	if err := json.Unmarshal([]byte(secret), &af); err != nil {
		return nil, fmt.Errorf("decoding keyring credentials: %w", err)
	}
	return &af, nil
}

func (s *KeyringStore) Save(ctx context.Context, af *AuthFile) error {
	data, err := json.Marshal(af)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.Service, s.User, string(data)); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}
