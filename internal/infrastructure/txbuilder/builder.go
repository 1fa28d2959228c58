// Package txbuilder assembles signed P2PKH spending transactions from
// selected utxos. Signing goes through the opaque vault signer, the builder
// never sees private key material.
package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
)

// DustLimit is the smallest change output worth creating; anything below is
// left to the fee.
const DustLimit = 546

// P2PKHBuilder builds pay-to-pubkey-hash transactions on the given network.
type P2PKHBuilder struct {
	net *chaincfg.Params
}

// New returns a P2PKHBuilder for the given network.
func New(net *chaincfg.Params) *P2PKHBuilder {
	return &P2PKHBuilder{net: net}
}

// Build assembles and signs a transaction spending the given inputs, paying
// satoshis to toAddress and returning the surplus beyond the fee to
// changeAddress. Change below the dust limit is dropped into the fee.
func (b *P2PKHBuilder) Build(
	inputs []domain.Utxo,
	toAddress string,
	satoshis, fee uint64,
	changeAddress string,
	signer ports.Signer,
) ([]byte, string, error) {
	if len(inputs) == 0 {
		return nil, "", fmt.Errorf("no inputs to spend")
	}

	tx := wire.NewMsgTx(wire.TxVersion)

	var total uint64
	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return nil, "", fmt.Errorf("invalid input txid %s: %w", in.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.VOut), nil, nil))
		total += in.Satoshis
	}
	if total < satoshis+fee {
		return nil, "", fmt.Errorf(
			"inputs cover %d satoshis, need %d", total, satoshis+fee,
		)
	}

	payScript, err := b.payToAddrScript(toAddress)
	if err != nil {
		return nil, "", err
	}
	tx.AddTxOut(wire.NewTxOut(int64(satoshis), payScript))

	if change := total - satoshis - fee; change >= DustLimit {
		changeScript, err := b.payToAddrScript(changeAddress)
		if err != nil {
			return nil, "", err
		}
		tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
	}

	for i, in := range inputs {
		prevScript := in.LockingScript
		if len(prevScript) == 0 {
			prevScript, err = b.payToAddrScript(in.Address)
			if err != nil {
				return nil, "", fmt.Errorf(
					"input %s:%d has no locking script: %w", in.TxID, in.VOut, err,
				)
			}
		}
		sigScript, err := signer.SignatureScript(tx, i, prevScript)
		if err != nil {
			return nil, "", fmt.Errorf("signing input %d: %w", i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), tx.TxHash().String(), nil
}

func (b *P2PKHBuilder) payToAddrScript(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, b.net)
	if err != nil {
		return nil, fmt.Errorf("decoding address %s: %w", address, err)
	}
	return txscript.PayToAddrScript(addr)
}
