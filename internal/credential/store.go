// Package credential keeps the single locally registered user record.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/go-playground/validator/v10"
)

// DefaultKey is the slot the credential record lives under.
const DefaultKey = "airwatch:user"

// ErrKeyNotFound is returned by KV implementations for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// KV is the key-value backend behind the store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

var validate = validator.New()

// Store persists one credential under a fixed key. Sign-up overwrites.
type Store struct {
	kv     KV
	key    string
	logger *slog.Logger
}

// NewStore creates a store over kv using DefaultKey.
func NewStore(kv KV, logger *slog.Logger) *Store {
	return &Store{kv: kv, key: DefaultKey, logger: logger}
}

// SignUp validates and persists the record, replacing any previous one.
func (s *Store) SignUp(ctx context.Context, c domain.Credential) error {
	if err := validate.Struct(c); err != nil {
		return domain.NewError(domain.ErrValidation, "Please fill in all fields.")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("serialize credential: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.logger.Info("credential stored", "key", s.key)
	return nil
}

// Login returns the stored record when the trimmed email and password match.
func (s *Store) Login(ctx context.Context, email, password string) (domain.Credential, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrKeyNotFound) {
		return domain.Credential{}, domain.NewError(domain.ErrNotFound, "No user found. Please sign up first.")
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("load credential: %w", err)
	}

	var c domain.Credential
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn("stored credential is unreadable", "key", s.key, "error", err)
		return domain.Credential{}, domain.NewError(domain.ErrNotFound, "Could not log in. Please sign up first.")
	}
	if !c.Matches(email, password) {
		return domain.Credential{}, domain.NewError(domain.ErrAuth, "Invalid email or password.")
	}
	return c, nil
}
