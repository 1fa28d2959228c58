package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// messageMagic is the prefix of the Bitcoin signed message format.
const messageMagic = "Bitcoin Signed Message:\n"

type signer struct {
	key *btcec.PrivateKey
}

// SignMessage signs a message in the Bitcoin signed message format: magic
// prefix and message are var-string encoded, double-sha256 hashed and signed
// with a DER-serialized ECDSA signature.
func (s *signer) SignMessage(message []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarString(&buf, 0, messageMagic); err != nil {
		return nil, err
	}
	if err := wire.WriteVarString(&buf, 0, string(message)); err != nil {
		return nil, err
	}
	hash := chainhash.DoubleHashB(buf.Bytes())

	sig := ecdsa.Sign(s.key, hash)
	return sig.Serialize(), nil
}

// SignData signs the sha256 digest of arbitrary data.
func (s *signer) SignData(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	sig := ecdsa.Sign(s.key, hash[:])
	return sig.Serialize(), nil
}

// SignatureScript produces the unlocking script for a P2PKH input. The
// private key never leaves the vault.
func (s *signer) SignatureScript(
	tx *wire.MsgTx, idx int, prevPkScript []byte,
) ([]byte, error) {
	return txscript.SignatureScript(
		tx, idx, prevPkScript, txscript.SigHashAll, s.key, true,
	)
}

// VerifyMessage reports whether sig is a valid SignMessage signature over
// message by the hex-encoded compressed public key. Verification needs no
// private material, so it works against any published key.
func VerifyMessage(pubKeyHex string, message, sig []byte) (bool, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarString(&buf, 0, messageMagic); err != nil {
		return false, err
	}
	if err := wire.WriteVarString(&buf, 0, string(message)); err != nil {
		return false, err
	}
	return verifyHash(pubKeyHex, chainhash.DoubleHashB(buf.Bytes()), sig)
}

// VerifyData reports whether sig is a valid SignData signature over data by
// the hex-encoded compressed public key.
func VerifyData(pubKeyHex string, data, sig []byte) (bool, error) {
	hash := sha256.Sum256(data)
	return verifyHash(pubKeyHex, hash[:], sig)
}

func verifyHash(pubKeyHex string, hash, sig []byte) (bool, error) {
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("decoding public key: %w", err)
	}
	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("parsing public key: %w", err)
	}
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, fmt.Errorf("parsing signature: %w", err)
	}
	return signature.Verify(hash, pubKey), nil
}
