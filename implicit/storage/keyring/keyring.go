// Package keyring stores the implicit flow session in the operating system's
// keychain (macOS Keychain, Secret Service on Linux, Windows Credential
// Manager).
package keyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/FairVenturesLab/implicit-auth/implicit"
	"github.com/zalando/go-keyring"
)

// DefaultService is the keychain service the session is stored under.
const DefaultService = "implicit-auth"

// Storage implements implicit.Storage with one keychain item per key.
type Storage struct {
	service string
}

// ensure that Storage implements the implicit.Storage interface
var _ implicit.Storage = (*Storage)(nil)

// New returns a Storage for service; an empty service uses DefaultService.
// Use a distinct service per client to keep their sessions apart.
func New(service string) *Storage {
	if service == "" {
		service = DefaultService
	}
	return &Storage{service: service}
}

// Get implements implicit.Storage.Get
func (s *Storage) Get(_ context.Context, key string) (string, bool, error) {
	const op = "keyring.Get"
	v, err := keyring.Get(s.service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return v, true, nil
}

// Set implements implicit.Storage.Set
func (s *Storage) Set(_ context.Context, key, value string) error {
	const op = "keyring.Set"
	if err := keyring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements implicit.Storage.Delete.  Deleting a missing key is not
// an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	const op = "keyring.Delete"
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
