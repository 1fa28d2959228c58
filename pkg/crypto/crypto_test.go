package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/pkg/crypto"
)

func TestEncryptDecrypt(t *testing.T) {
	plaintext := []byte(`{"walletWif":"L1aW4aubDFB7yfras2S1mN3bqg9nwySY8nkoLmJebSLD5BWv3ENZ"}`)

	envelope, err := crypto.Encrypt(plaintext, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, uint32(crypto.CurrentVersion), envelope.Version)
	assert.Equal(t, uint32(crypto.DefaultIterations), envelope.Iterations)

	decrypted, err := crypto.Decrypt(envelope, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongPassword(t *testing.T) {
	envelope, err := crypto.Encrypt([]byte("secret"), "hunter22")
	require.NoError(t, err)

	_, err = crypto.Decrypt(envelope, "wrong")
	assert.EqualError(t, err, crypto.ErrInvalidPassword.Error())
}

func TestSerializeRoundTrip(t *testing.T) {
	envelope, err := crypto.Encrypt([]byte("secret"), "hunter22")
	require.NoError(t, err)

	raw, err := envelope.Serialize()
	require.NoError(t, err)

	parsed, err := crypto.ParseEncryptedData(raw)
	require.NoError(t, err)

	decrypted, err := crypto.Decrypt(parsed, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), decrypted)
}

func TestParseMalformedEnvelope(t *testing.T) {
	_, err := crypto.ParseEncryptedData([]byte("not json"))
	assert.EqualError(t, err, crypto.ErrMalformedEnvelope.Error())

	_, err = crypto.ParseEncryptedData([]byte(`{"version":1}`))
	assert.EqualError(t, err, crypto.ErrMalformedEnvelope.Error())
}
