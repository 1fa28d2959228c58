package domain

import "errors"

var (
	// ErrAccountNotFound ...
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNameAlreadyTaken ...
	ErrAccountNameAlreadyTaken = errors.New("account name is already taken")
	// ErrInvalidAccountName is thrown when creating or renaming an account
	// with an empty name.
	ErrInvalidAccountName = errors.New("account name must not be empty")
	// ErrInvalidAccountID is thrown when attempting to write account-scoped
	// data without a resolvable account id. Writing ledger rows against an
	// unscoped id is treated as data corruption and refused outright.
	ErrInvalidAccountID = errors.New("account id must not be empty")
	// ErrUtxoNotFound ...
	ErrUtxoNotFound = errors.New("utxo not found")
	// ErrInvalidBasket ...
	ErrInvalidBasket = errors.New("basket is not a known classification")
	// ErrIllegalSpendTransition is thrown on any spending status transition
	// other than unspent->pending, pending->spent and pending->unspent.
	ErrIllegalSpendTransition = errors.New("illegal spending status transition")
	// ErrUtxoNotPending is thrown when confirming or rolling back a utxo
	// that is not held in the pending state.
	ErrUtxoNotPending = errors.New("utxo is not pending")
	// ErrSpendTxMismatch is thrown when confirming a pending utxo with a
	// transaction id different from the one recorded at selection time.
	ErrSpendTxMismatch = errors.New("spending txid does not match the pending one")
	// ErrTransactionNotFound ...
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrSettingNotFound ...
	ErrSettingNotFound = errors.New("account setting not found")
)
