package application

import "errors"

var (
	// ErrNoCredential is returned by the key resolution fallback chain when
	// the vault holds no seed and no session password is available. The
	// caller must re-unlock the wallet.
	ErrNoCredential = errors.New("no session credential available, wallet must be re-unlocked")
	// ErrDecryptionFailed is returned when the stored key blob of an
	// account does not decrypt with the session password. The credential is
	// deliberately left in place so a transient failure does not lock the
	// user out.
	ErrDecryptionFailed = errors.New("failed to decrypt account keys")
	// ErrNoEncryptedKeys is returned by the fallback path when the account
	// carries no encrypted key blob to decrypt.
	ErrNoEncryptedKeys = errors.New("account has no encrypted keys stored")
	// ErrUnscopedAccount is returned when a reconciliation is requested
	// without a resolvable account id. Writing ledger data against an
	// unscoped account is refused outright.
	ErrUnscopedAccount = errors.New("refusing to reconcile without a resolvable account id")
	// ErrInsufficientFunds is returned by coin selection when the spendable
	// utxos of the basket cannot cover amount plus fee.
	ErrInsufficientFunds = errors.New("insufficient spendable funds")
	// ErrNoAccounts is returned when an operation requires at least one
	// wallet account to exist.
	ErrNoAccounts = errors.New("wallet has no accounts")
	// ErrUnlockThrottled is returned while unlock attempts are locked out
	// after too many wrong passwords.
	ErrUnlockThrottled = errors.New("too many failed unlock attempts")
)
