// Package vault implements the in-process key vault. It is the only place
// where the wallet seed and private keys live; everything outside receives
// public material or opaque signing capabilities.
package vault

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/thanhpk/randstr"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
)

// Derivation paths of the wallet/ordinals/identity triple.
const (
	walletPathFmt   = "m/44'/236'/%d'/1/0"
	ordinalsPathFmt = "m/44'/236'/%d'/0/0"
	identityPathFmt = "m/0'/236'/%d'/0/0"
)

type derivedAccount struct {
	walletKey   *btcec.PrivateKey
	ordKey      *btcec.PrivateKey
	identityKey *btcec.PrivateKey
	public      ports.PublicKeySet
}

// Vault holds the seed and per-account derived keys behind a mutex. Accounts
// seeded through StoreKeys (the password fallback path) remain derivable
// even while the seed itself is absent.
type Vault struct {
	mtx      sync.Mutex
	seed     []byte
	accounts map[uint32]*derivedAccount
	sessions map[string]string
	net      *chaincfg.Params
}

// New returns an empty, sealed Vault.
func New(net *chaincfg.Params) *Vault {
	return &Vault{
		accounts: map[uint32]*derivedAccount{},
		sessions: map[string]string{},
		net:      net,
	}
}

// SetSeed initializes the vault with the wallet seed. Previously cached
// per-account keys are kept, they would derive to the same material.
func (v *Vault) SetSeed(seed []byte) error {
	if len(seed) < hdkeychain.MinSeedBytes {
		return fmt.Errorf("seed must be at least %d bytes", hdkeychain.MinSeedBytes)
	}

	v.mtx.Lock()
	defer v.mtx.Unlock()
	v.seed = make([]byte, len(seed))
	copy(v.seed, seed)
	return nil
}

// HasSeed returns whether the vault currently holds the wallet seed.
func (v *Vault) HasSeed() bool {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return len(v.seed) > 0
}

// Clear wipes the seed and every cached private key.
func (v *Vault) Clear() {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	for i := range v.seed {
		v.seed[i] = 0
	}
	v.seed = nil
	for _, acc := range v.accounts {
		acc.walletKey.Zero()
		acc.ordKey.Zero()
		acc.identityKey.Zero()
	}
	v.accounts = map[uint32]*derivedAccount{}
	v.sessions = map[string]string{}
}

// DeriveForAccount derives the key triple for the account at the given index
// and returns its public material only. Returns ports.ErrVaultSealed if
// neither the seed nor pre-derived keys for the index are available.
func (v *Vault) DeriveForAccount(derivationIndex uint32) (*ports.PublicKeySet, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	acc, err := v.accountForIndex(derivationIndex)
	if err != nil {
		return nil, err
	}
	public := acc.public
	return &public, nil
}

// StoreKeys seeds the vault with pre-derived keys obtained by decrypting an
// account's stored key blob, making the primary path usable again for that
// account until the vault is cleared.
func (v *Vault) StoreKeys(keys *ports.KeySet, derivationIndex uint32) error {
	walletKey, err := decodeWIF(keys.WalletWIF)
	if err != nil {
		return fmt.Errorf("decoding wallet key: %w", err)
	}
	ordKey, err := decodeWIF(keys.OrdWIF)
	if err != nil {
		return fmt.Errorf("decoding ordinals key: %w", err)
	}
	identityKey, err := decodeWIF(keys.IdentityWIF)
	if err != nil {
		return fmt.Errorf("decoding identity key: %w", err)
	}

	v.mtx.Lock()
	defer v.mtx.Unlock()
	v.accounts[derivationIndex] = &derivedAccount{
		walletKey:   walletKey,
		ordKey:      ordKey,
		identityKey: identityKey,
		public:      keys.PublicKeySet,
	}
	return nil
}

// SignerForAccount returns a signing capability bound to one key of the
// account at the given index.
func (v *Vault) SignerForAccount(
	derivationIndex uint32, keyType string,
) (ports.Signer, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	acc, err := v.accountForIndex(derivationIndex)
	if err != nil {
		return nil, err
	}

	var key *btcec.PrivateKey
	switch keyType {
	case domain.KeyTypeWallet:
		key = acc.walletKey
	case domain.KeyTypeOrdinals:
		key = acc.ordKey
	case domain.KeyTypeIdentity:
		key = acc.identityKey
	default:
		return nil, ports.ErrVaultUnknownKeyType
	}
	return &signer{key: key}, nil
}

// RotateSession renews the session token for the given account. The renewal
// respects the context deadline; callers treat a timeout as a soft failure.
func (v *Vault) RotateSession(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	token := randstr.Hex(16)

	v.mtx.Lock()
	defer v.mtx.Unlock()
	v.sessions[accountID] = token
	return nil
}

// SessionToken returns the current session token for an account, if any.
func (v *Vault) SessionToken(accountID string) (string, bool) {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	token, ok := v.sessions[accountID]
	return token, ok
}

// accountForIndex must be called with the mutex held.
func (v *Vault) accountForIndex(derivationIndex uint32) (*derivedAccount, error) {
	if acc, ok := v.accounts[derivationIndex]; ok {
		return acc, nil
	}
	if len(v.seed) == 0 {
		return nil, ports.ErrVaultSealed
	}

	acc, err := v.deriveAccount(derivationIndex)
	if err != nil {
		return nil, err
	}
	v.accounts[derivationIndex] = acc
	return acc, nil
}

func (v *Vault) deriveAccount(index uint32) (*derivedAccount, error) {
	master, err := hdkeychain.NewMaster(v.seed, v.net)
	if err != nil {
		return nil, fmt.Errorf("deriving master key: %w", err)
	}
	defer master.Zero()

	walletKey, err := derivePath(master, fmt.Sprintf(walletPathFmt, index))
	if err != nil {
		return nil, err
	}
	ordKey, err := derivePath(master, fmt.Sprintf(ordinalsPathFmt, index*2+1))
	if err != nil {
		return nil, err
	}
	identityKey, err := derivePath(master, fmt.Sprintf(identityPathFmt, index))
	if err != nil {
		return nil, err
	}

	walletAddr, walletPub, err := v.addressForKey(walletKey)
	if err != nil {
		return nil, err
	}
	ordAddr, ordPub, err := v.addressForKey(ordKey)
	if err != nil {
		return nil, err
	}
	identityAddr, identityPub, err := v.addressForKey(identityKey)
	if err != nil {
		return nil, err
	}

	return &derivedAccount{
		walletKey:   walletKey,
		ordKey:      ordKey,
		identityKey: identityKey,
		public: ports.PublicKeySet{
			WalletAddress:   walletAddr,
			WalletPubKey:    walletPub,
			OrdAddress:      ordAddr,
			OrdPubKey:       ordPub,
			IdentityAddress: identityAddr,
			IdentityPubKey:  identityPub,
		},
	}, nil
}

// ExportKeySet returns the full key triple of an account in WIF format. Used
// once at account creation to produce the encrypted key blob; the result
// must not be retained by callers.
func (v *Vault) ExportKeySet(derivationIndex uint32) (*ports.KeySet, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	acc, err := v.accountForIndex(derivationIndex)
	if err != nil {
		return nil, err
	}

	walletWIF, err := encodeWIF(acc.walletKey, v.net)
	if err != nil {
		return nil, err
	}
	ordWIF, err := encodeWIF(acc.ordKey, v.net)
	if err != nil {
		return nil, err
	}
	identityWIF, err := encodeWIF(acc.identityKey, v.net)
	if err != nil {
		return nil, err
	}

	return &ports.KeySet{
		PublicKeySet: acc.public,
		WalletWIF:    walletWIF,
		OrdWIF:       ordWIF,
		IdentityWIF:  identityWIF,
	}, nil
}

func (v *Vault) addressForKey(key *btcec.PrivateKey) (string, string, error) {
	pub := key.PubKey().SerializeCompressed()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), v.net)
	if err != nil {
		return "", "", err
	}
	return addr.EncodeAddress(), fmt.Sprintf("%x", pub), nil
}

func derivePath(master *hdkeychain.ExtendedKey, path string) (*btcec.PrivateKey, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("derivation path must start with m: %s", path)
	}

	key := master
	for _, part := range parts[1:] {
		indexStr, hardened := part, false
		if strings.HasSuffix(part, "'") {
			indexStr, hardened = strings.TrimSuffix(part, "'"), true
		}
		index, err := strconv.ParseUint(indexStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path index %s: %w", part, err)
		}
		childIndex := uint32(index)
		if hardened {
			childIndex += hdkeychain.HardenedKeyStart
		}

		child, err := key.Derive(childIndex)
		if err != nil {
			return nil, fmt.Errorf("deriving %s: %w", path, err)
		}
		if key != master {
			key.Zero()
		}
		key = child
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	if key != master {
		key.Zero()
	}
	return priv, nil
}

func decodeWIF(wif string) (*btcec.PrivateKey, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, err
	}
	return decoded.PrivKey, nil
}

func encodeWIF(key *btcec.PrivateKey, net *chaincfg.Params) (string, error) {
	wif, err := btcutil.NewWIF(key, net, true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}
