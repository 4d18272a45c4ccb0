// Package keychain reads secrets from the OS keychain (Secret Service,
// macOS Keychain, Windows Credential Manager).
package keychain

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// Store is a keychain namespace. Secrets are stored per account, which
// for this bot is the environment variable name they stand in for.
type Store struct {
	Service string
}

func New(service string) Store { return Store{Service: service} }

// Get returns the secret for account. A missing entry is not an error and
// yields "".
func (s Store) Get(account string) (string, error) {
	v, err := keyring.Get(s.Service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}
