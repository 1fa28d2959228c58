package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/internal/core/application"
	"github.com/bsv-wallet/walletd/internal/core/domain"
)

func newAccountWithBlob(
	t *testing.T, svc *testServices, index uint32,
) *domain.Account {
	t.Helper()

	account, err := domain.NewAccount("Main", index, svc.clk.Now())
	require.NoError(t, err)

	keySet, err := svc.vault.ExportKeySet(index)
	require.NoError(t, err)
	blob, err := application.EncryptKeySet(keySet, testPassword)
	require.NoError(t, err)
	account.EncryptedKeys = blob
	account.IdentityAddress = keySet.IdentityAddress
	return account
}

func TestResolveKeysPrimaryPath(t *testing.T) {
	svc := newTestServices(t)
	resolver := application.NewKeyResolver(svc.vault, svc.creds)
	account := newAccountWithBlob(t, svc, 0)

	keys, err := resolver.ResolveKeys(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, account.IdentityAddress, keys.IdentityAddress)
	assert.NotEmpty(t, keys.WalletAddress)
	assert.NotEmpty(t, keys.OrdAddress)
}

func TestResolveKeysFallbackDecryptsAndReseeds(t *testing.T) {
	svc := newTestServices(t)
	resolver := application.NewKeyResolver(svc.vault, svc.creds)
	account := newAccountWithBlob(t, svc, 0)

	primary, err := resolver.ResolveKeys(ctx, account)
	require.NoError(t, err)

	svc.vault.Clear()
	require.False(t, svc.vault.HasSeed())

	fallback, err := resolver.ResolveKeys(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, primary.WalletAddress, fallback.WalletAddress)
	assert.Equal(t, primary.IdentityAddress, fallback.IdentityAddress)

	// The decrypted triple was handed back to the vault, so the primary
	// path works again without the seed.
	keys, err := svc.vault.DeriveForAccount(account.DerivationIndex)
	require.NoError(t, err)
	assert.Equal(t, primary.WalletAddress, keys.WalletAddress)
}

func TestResolveKeysNoCredential(t *testing.T) {
	svc := newTestServices(t)
	resolver := application.NewKeyResolver(svc.vault, svc.creds)
	account := newAccountWithBlob(t, svc, 0)

	svc.vault.Clear()
	svc.creds.Clear()

	_, err := resolver.ResolveKeys(ctx, account)
	assert.ErrorIs(t, err, application.ErrNoCredential)

	// Unlocked without a password is just as terminal for the fallback.
	svc.creds.SetUnlockedNoPassword()
	_, err = resolver.ResolveKeys(ctx, account)
	assert.ErrorIs(t, err, application.ErrNoCredential)
}

func TestResolveKeysWrongPasswordKeepsCredential(t *testing.T) {
	svc := newTestServices(t)
	resolver := application.NewKeyResolver(svc.vault, svc.creds)
	account := newAccountWithBlob(t, svc, 0)

	svc.vault.Clear()
	svc.creds.SetPassword("not-the-password")

	_, err := resolver.ResolveKeys(ctx, account)
	assert.ErrorIs(t, err, application.ErrDecryptionFailed)

	// The credential survives a failed decryption.
	password, ok := svc.creds.Password()
	require.True(t, ok)
	assert.Equal(t, "not-the-password", password)
}

func TestResolveKeysNoBlob(t *testing.T) {
	svc := newTestServices(t)
	resolver := application.NewKeyResolver(svc.vault, svc.creds)

	account, err := domain.NewAccount("Main", 0, svc.clk.Now())
	require.NoError(t, err)

	svc.vault.Clear()

	_, err = resolver.ResolveKeys(ctx, account)
	assert.ErrorIs(t, err, application.ErrNoEncryptedKeys)
}

func TestEncryptDecryptKeySetRoundTrip(t *testing.T) {
	svc := newTestServices(t)

	keySet, err := svc.vault.ExportKeySet(3)
	require.NoError(t, err)

	blob, err := application.EncryptKeySet(keySet, testPassword)
	require.NoError(t, err)

	decrypted, err := application.DecryptKeySet(blob, testPassword)
	require.NoError(t, err)
	assert.Equal(t, keySet.WalletWIF, decrypted.WalletWIF)
	assert.Equal(t, keySet.OrdWIF, decrypted.OrdWIF)
	assert.Equal(t, keySet.IdentityWIF, decrypted.IdentityWIF)
	assert.Equal(t, keySet.PublicKeySet, decrypted.PublicKeySet)

	_, err = application.DecryptKeySet(blob, "wrong")
	assert.ErrorIs(t, err, application.ErrDecryptionFailed)

	_, err = application.DecryptKeySet([]byte("garbage"), testPassword)
	assert.ErrorIs(t, err, application.ErrDecryptionFailed)
}
