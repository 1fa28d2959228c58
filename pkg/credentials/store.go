// Package credentials implements the process-wide, single-slot holder of the
// session credential: the password of the currently unlocked wallet, or an
// explicit "unlocked without password" sentinel distinct from "locked".
package credentials

import "sync"

// State of the credential slot.
type State int

const (
	// Locked means no credential is available and the wallet is locked.
	Locked State = iota
	// UnlockedWithPassword means the session password is held in the slot.
	UnlockedWithPassword
	// UnlockedNoPassword means the wallet was unlocked without a password.
	// Distinct from Locked: the session is usable, but the fallback
	// decryption path has no credential to work with.
	UnlockedNoPassword
)

// Store is the single-writer credential slot. One instance exists per
// process, injected wherever the session password is needed.
type Store struct {
	mtx      sync.RWMutex
	state    State
	password string
}

// NewStore returns a locked credential store.
func NewStore() *Store {
	return &Store{state: Locked}
}

// SetPassword stores the session password, marking the slot unlocked.
func (s *Store) SetPassword(password string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state = UnlockedWithPassword
	s.password = password
}

// SetUnlockedNoPassword marks the slot unlocked without a usable password.
func (s *Store) SetUnlockedNoPassword() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state = UnlockedNoPassword
	s.password = ""
}

// Clear wipes the slot back to the locked state.
func (s *Store) Clear() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state = Locked
	s.password = ""
}

// Password returns the session password and whether one is available.
func (s *Store) Password() (string, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.state != UnlockedWithPassword {
		return "", false
	}
	return s.password, true
}

// State returns the current slot state.
func (s *Store) State() State {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.state
}

// IsLocked returns whether the slot is in the locked state.
func (s *Store) IsLocked() bool {
	return s.State() == Locked
}
