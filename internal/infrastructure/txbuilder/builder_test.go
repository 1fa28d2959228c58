package txbuilder

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/infrastructure/vault"
)

var testSeed = []byte("000102030405060708090a0b0c0d0e0f10111213")

func TestBuildSignedP2PKHTransaction(t *testing.T) {
	net := &chaincfg.RegressionNetParams
	vlt := vault.New(net)
	require.NoError(t, vlt.SetSeed(testSeed))

	keys, err := vlt.DeriveForAccount(0)
	require.NoError(t, err)
	signer, err := vlt.SignerForAccount(0, domain.KeyTypeWallet)
	require.NoError(t, err)

	addr, err := btcutil.DecodeAddress(keys.WalletAddress, net)
	require.NoError(t, err)
	prevScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	inputs := []domain.Utxo{{
		TxID:          "aa8c0f8b3f5a2b9a1be3b1be2a1f3e4d5c6b7a8900112233445566778899aabb",
		VOut:          1,
		Satoshis:      10000,
		LockingScript: prevScript,
		Address:       keys.WalletAddress,
	}}

	builder := New(net)
	rawTx, txID, err := builder.Build(
		inputs, keys.WalletAddress, 6000, 200, keys.WalletAddress, signer,
	)
	require.NoError(t, err)
	require.NotEmpty(t, rawTx)
	assert.Len(t, txID, 64)

	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawTx)))
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 2)
	assert.Equal(t, int64(6000), tx.TxOut[0].Value)
	assert.Equal(t, int64(3800), tx.TxOut[1].Value)

	// The signature script must actually satisfy the spent output.
	fetcher := txscript.NewCannedPrevOutputFetcher(prevScript, 10000)
	engine, err := txscript.NewEngine(
		prevScript, &tx, 0, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(&tx, fetcher), 10000, fetcher,
	)
	require.NoError(t, err)
	assert.NoError(t, engine.Execute())
}

func TestBuildDropsDustChange(t *testing.T) {
	net := &chaincfg.RegressionNetParams
	vlt := vault.New(net)
	require.NoError(t, vlt.SetSeed(testSeed))

	keys, err := vlt.DeriveForAccount(0)
	require.NoError(t, err)
	signer, err := vlt.SignerForAccount(0, domain.KeyTypeWallet)
	require.NoError(t, err)

	inputs := []domain.Utxo{{
		TxID:     "aa8c0f8b3f5a2b9a1be3b1be2a1f3e4d5c6b7a8900112233445566778899aabb",
		VOut:     0,
		Satoshis: 10000,
		Address:  keys.WalletAddress,
	}}

	builder := New(net)
	// Change of 300 satoshis is below the dust limit.
	rawTx, _, err := builder.Build(
		inputs, keys.WalletAddress, 9500, 200, keys.WalletAddress, signer,
	)
	require.NoError(t, err)

	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(rawTx)))
	assert.Len(t, tx.TxOut, 1)
}

func TestBuildRejectsUnderfundedInputs(t *testing.T) {
	net := &chaincfg.RegressionNetParams
	vlt := vault.New(net)
	require.NoError(t, vlt.SetSeed(testSeed))

	keys, err := vlt.DeriveForAccount(0)
	require.NoError(t, err)
	signer, err := vlt.SignerForAccount(0, domain.KeyTypeWallet)
	require.NoError(t, err)

	inputs := []domain.Utxo{{
		TxID:     "aa8c0f8b3f5a2b9a1be3b1be2a1f3e4d5c6b7a8900112233445566778899aabb",
		VOut:     0,
		Satoshis: 1000,
		Address:  keys.WalletAddress,
	}}

	_, _, err = New(net).Build(
		inputs, keys.WalletAddress, 2000, 100, keys.WalletAddress, signer,
	)
	require.Error(t, err)

	_, _, err = New(net).Build(
		nil, keys.WalletAddress, 2000, 100, keys.WalletAddress, signer,
	)
	require.Error(t, err)
}
