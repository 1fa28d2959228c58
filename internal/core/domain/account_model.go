package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is a named identity of the wallet, positioned in the deterministic
// key tree by its DerivationIndex. Exactly one account is active at a time.
type Account struct {
	ID              string
	Name            string
	IdentityAddress string
	// EncryptedKeys holds the password-encrypted key blob used by the
	// fallback derivation path when the vault has no seed. Empty for
	// accounts created while running without a password.
	EncryptedKeys   []byte
	Active          bool
	DerivationIndex uint32
	CreatedAt       time.Time
	LastAccessedAt  time.Time
}

// AccountSetting is a single key/value pair scoped to an account. Used among
// other things for the per-basket cached balance hints written by the sync
// orchestrator.
type AccountSetting struct {
	AccountID string
	Key       string
	Value     string
}

// NewAccount returns an Account with a fresh id positioned at the provided
// derivation index.
func NewAccount(name string, derivationIndex uint32, now time.Time) (*Account, error) {
	if len(name) == 0 {
		return nil, ErrInvalidAccountName
	}

	return &Account{
		ID:              uuid.New().String(),
		Name:            name,
		DerivationIndex: derivationIndex,
		CreatedAt:       now,
		LastAccessedAt:  now,
	}, nil
}
