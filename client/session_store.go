package client

import (
	stderrors "errors"
	"sync"

	"github.com/fieldware/sessiongate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/zalando/go-keyring"
)

// SessionStore is the single durable token slot. An absent token reads back
// as ("", nil); only real backend faults surface as errors.
type SessionStore interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

const (
	defaultService = "sessiongate"
	defaultAccount = "session_token"
)

// KeyringStore persists the token in the OS credential store, so it survives
// process restarts without touching disk in plaintext.
type KeyringStore struct {
	service string
	account string
}

type KeyringOption func(*KeyringStore)

// WithService namespaces the keyring entry, e.g. per application.
func WithService(service string) KeyringOption {
	return func(s *KeyringStore) {
		if service != "" {
			s.service = service
		}
	}
}

// WithAccount overrides the entry name within the service.
func WithAccount(account string) KeyringOption {
	return func(s *KeyringStore) {
		if account != "" {
			s.account = account
		}
	}
}

func NewKeyringStore(opts ...KeyringOption) *KeyringStore {
	s := &KeyringStore{
		service: defaultService,
		account: defaultAccount,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *KeyringStore) Get() (string, error) {
	token, err := keyring.Get(s.service, s.account)
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", wrapStorage(err, "failed to read session token")
	}
	return token, nil
}

func (s *KeyringStore) Set(token string) error {
	if err := keyring.Set(s.service, s.account, token); err != nil {
		return wrapStorage(err, "failed to persist session token")
	}
	return nil
}

func (s *KeyringStore) Delete() error {
	if err := keyring.Delete(s.service, s.account); err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return wrapStorage(err, "failed to clear session token")
	}
	return nil
}

func wrapStorage(err error, msg string) error {
	return goerrors.Wrap(err, sessiongate.ErrStorage.Category, msg).
		WithTextCode(sessiongate.TextCodeStorageError)
}

// MemoryStore is an in-process token slot for tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
