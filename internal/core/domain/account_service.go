package domain

import "time"

// Touch refreshes the last-accessed timestamp. Called whenever the account
// becomes the active one.
func (a *Account) Touch(now time.Time) {
	a.LastAccessedAt = now
}

// Rename changes the display name of the account.
func (a *Account) Rename(name string) error {
	if len(name) == 0 {
		return ErrInvalidAccountName
	}
	a.Name = name
	return nil
}

// HasEncryptedKeys returns whether the account carries a password-encrypted
// key blob usable by the fallback derivation path.
func (a *Account) HasEncryptedKeys() bool {
	return len(a.EncryptedKeys) > 0
}
