package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const tokenKey = "access_token"

// TokenStore persists the access token between runs
type TokenStore interface {
	// Load returns the persisted token, or "" when none is stored
	Load(ctx context.Context) (string, error)

	// Save replaces the persisted token
	Save(ctx context.Context, token string) error

	// Clear removes the persisted token. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// KeyringConfig selects where tokens are kept
type KeyringConfig struct {
	ServiceName  string
	Backend      string // keyring, file
	FileDir      string
	FilePassword string
}

// filePassword returns the key of the file backend. Without a configured
// password the key is derived from the service name, so the file backend
// then only obscures the token and is no safer than a plain file.
func (c KeyringConfig) filePassword() string {
	if c.FilePassword != "" {
		return c.FilePassword
	}
	return c.ServiceName + "-file-key"
}

// OpenKeyring returns a configured keyring instance. The "file" backend
// skips OS keychains entirely, which suits headless machines.
func OpenKeyring(cfg KeyringConfig) (keyring.Keyring, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if cfg.Backend == "file" {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          backends,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.filePassword()),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringStore keeps the token in a keyring
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore wraps an opened keyring
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Load retrieves the token from the keyring
func (s *KeyringStore) Load(ctx context.Context) (string, error) {
	item, err := s.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", tokenKey, err)
	}
	return string(item.Data), nil
}

// Save stores the token in the keyring
func (s *KeyringStore) Save(ctx context.Context, token string) error {
	err := s.ring.Set(keyring.Item{
		Key:   tokenKey,
		Data:  []byte(token),
		Label: "mailjob access token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey, err)
	}
	return nil
}

// Clear removes the token from the keyring
func (s *KeyringStore) Clear(ctx context.Context) error {
	err := s.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", tokenKey, err)
	}
	return nil
}

// MemoryStore keeps the token in process memory only
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore creates a MemoryStore holding token
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
