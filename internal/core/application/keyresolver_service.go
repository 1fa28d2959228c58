package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
	"github.com/bsv-wallet/walletd/pkg/credentials"
	"github.com/bsv-wallet/walletd/pkg/crypto"
)

// KeyResolver produces the public key material of an account, going through
// the vault first and falling back to password-based decryption of the
// account's stored key blob when the vault is sealed.
type KeyResolver interface {
	ResolveKeys(
		ctx context.Context, account *domain.Account,
	) (*ports.PublicKeySet, error)
}

type keyResolver struct {
	vault       ports.KeyVault
	credentials *credentials.Store
}

// NewKeyResolver returns a KeyResolver backed by the given vault and
// credential slot.
func NewKeyResolver(
	vault ports.KeyVault, creds *credentials.Store,
) KeyResolver {
	return &keyResolver{vault: vault, credentials: creds}
}

// ResolveKeys tries the vault first. When the vault is sealed it decrypts
// the account's key blob with the session password, re-seeds the vault with
// the decrypted triple and returns the public material. Any failure on the
// fallback path is terminal for the caller: either no credential is
// available (ErrNoCredential) or the blob does not decrypt
// (ErrDecryptionFailed). The stored credential is never cleared on a
// decryption failure.
func (r *keyResolver) ResolveKeys(
	ctx context.Context, account *domain.Account,
) (*ports.PublicKeySet, error) {
	keys, err := r.vault.DeriveForAccount(account.DerivationIndex)
	if err == nil {
		return keys, nil
	}
	if !errors.Is(err, ports.ErrVaultSealed) {
		return nil, fmt.Errorf("deriving keys for account %s: %w", account.ID, err)
	}

	password, ok := r.credentials.Password()
	if !ok {
		return nil, ErrNoCredential
	}
	if !account.HasEncryptedKeys() {
		return nil, ErrNoEncryptedKeys
	}

	keySet, err := DecryptKeySet(account.EncryptedKeys, password)
	if err != nil {
		return nil, err
	}

	// Re-seeding the vault makes the primary path work again for this
	// account. Failing to do so is not fatal, the resolved keys are still
	// good for this call.
	if err := r.vault.StoreKeys(keySet, account.DerivationIndex); err != nil {
		log.WithError(err).Warnf(
			"failed to re-seed vault for account %s", account.ID,
		)
	}

	public := keySet.PublicKeySet
	return &public, nil
}

// EncryptKeySet serializes the full key triple and encrypts it with the
// given password, producing the blob stored on the account record.
func EncryptKeySet(keys *ports.KeySet, password string) ([]byte, error) {
	plaintext, err := json.Marshal(keys)
	if err != nil {
		return nil, err
	}
	envelope, err := crypto.Encrypt(plaintext, password)
	if err != nil {
		return nil, err
	}
	return envelope.Serialize()
}

// DecryptKeySet reverses EncryptKeySet. A wrong password or a corrupted
// envelope both surface as ErrDecryptionFailed.
func DecryptKeySet(blob []byte, password string) (*ports.KeySet, error) {
	envelope, err := crypto.ParseEncryptedData(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, err)
	}
	plaintext, err := crypto.Decrypt(envelope, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecryptionFailed, err)
	}

	keySet := &ports.KeySet{}
	if err := json.Unmarshal(plaintext, keySet); err != nil {
		return nil, fmt.Errorf("%w: malformed key set", ErrDecryptionFailed)
	}
	return keySet, nil
}
