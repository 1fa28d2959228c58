package ports

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrVaultSealed is returned by the vault when it currently holds no
	// usable seed. Callers are expected to fall back to password-based
	// decryption of the account's stored key blob.
	ErrVaultSealed = errors.New("vault holds no seed")
	// ErrVaultUnknownKeyType ...
	ErrVaultUnknownKeyType = errors.New("unknown key type")
)

// PublicKeySet is the public-only view of the derived key triple of an
// account. It is safe to retain in application state and to publish to
// callers: it carries addresses and public keys but no private material.
type PublicKeySet struct {
	WalletAddress   string
	WalletPubKey    string
	OrdAddress      string
	OrdPubKey       string
	IdentityAddress string
	IdentityPubKey  string
}

// KeySet is the full derived triple including private keys in WIF format. It
// only exists transiently on the fallback derivation path, between the
// decryption of an account's key blob and its re-submission to the vault,
// and must never be retained in long-lived application state.
type KeySet struct {
	PublicKeySet
	WalletWIF   string
	OrdWIF      string
	IdentityWIF string
}

// Signer is an opaque signing capability bound to one key of one account.
// The private material backing it never leaves the vault.
type Signer interface {
	SignMessage(message []byte) ([]byte, error)
	SignData(data []byte) ([]byte, error)
	// SignatureScript produces the unlocking script for one input of a
	// transaction spending a P2PKH output locked to the signer's key.
	SignatureScript(
		tx *wire.MsgTx, idx int, prevPkScript []byte,
	) ([]byte, error)
}

// KeyVault is the privileged in-process holder of the wallet seed and of the
// per-account derived private keys. It may legitimately refuse requests: a
// sealed vault returns ErrVaultSealed and the caller is expected to go
// through the fallback path.
type KeyVault interface {
	// DeriveForAccount derives the key triple for the account at the given
	// derivation index and returns only its public material.
	DeriveForAccount(derivationIndex uint32) (*PublicKeySet, error)
	// StoreKeys seeds the vault with pre-derived keys, typically obtained by
	// decrypting an account's stored key blob. After a successful call the
	// primary derivation path works again for that account.
	StoreKeys(keys *KeySet, derivationIndex uint32) error
	// ExportKeySet returns the full key triple of the account at the given
	// index, private material included. Only meant to be called once at
	// account creation time, to produce the encrypted key blob.
	ExportKeySet(derivationIndex uint32) (*KeySet, error)
	// SetSeed initializes the vault with a seed from which per-account keys
	// are derived on demand.
	SetSeed(seed []byte) error
	HasSeed() bool
	// Clear wipes the seed and any cached key material.
	Clear()
	// SignerForAccount returns a signing capability for one key of the
	// account at the given index.
	SignerForAccount(derivationIndex uint32, keyType string) (Signer, error)
	// RotateSession renews the vault session token for the given account.
	// A timeout is non-fatal to callers and is surfaced as an error they
	// may log and ignore.
	RotateSession(ctx context.Context, accountID string) error
}
