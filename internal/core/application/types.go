package application

import (
	"time"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
)

// SyncMode selects how a reconciliation treats the local cache.
type SyncMode int

const (
	// SyncModeIncremental merges remote state into the existing cache.
	SyncModeIncremental SyncMode = iota
	// SyncModeFullRestore clears all cached ledger entries of the account
	// first, forcing a clean rebuild from the remote source. Used for the
	// user-triggered "restore from chain".
	SyncModeFullRestore
)

// SyncFailureCause classifies a failed reconciliation for the sync-health
// message shown to the user.
type SyncFailureCause string

const (
	SyncFailureNone    SyncFailureCause = ""
	SyncFailureStorage SyncFailureCause = "storage"
	SyncFailureNetwork SyncFailureCause = "network"
	SyncFailureQuery   SyncFailureCause = "query"
	SyncFailureUnknown SyncFailureCause = "unknown"
)

// AccountAddresses is the derived address triple of an account, used to
// scope remote pulls and to classify observed outputs into baskets.
type AccountAddresses struct {
	Wallet   string
	Ordinals string
	Identity string
}

// List returns the non-empty addresses of the triple.
func (a AccountAddresses) List() []string {
	list := make([]string, 0, 3)
	for _, addr := range []string{a.Wallet, a.Ordinals, a.Identity} {
		if len(addr) > 0 {
			list = append(list, addr)
		}
	}
	return list
}

// BasketForAddress returns the basket an output locked to the given address
// belongs to.
func (a AccountAddresses) BasketForAddress(address string) string {
	switch address {
	case a.Ordinals:
		return domain.BasketOrdinals
	case a.Identity:
		return domain.BasketIdentity
	default:
		return domain.BasketDefault
	}
}

// AddressesFromKeys builds the address triple from the public key set of an
// account.
func AddressesFromKeys(keys *ports.PublicKeySet) AccountAddresses {
	return AccountAddresses{
		Wallet:   keys.WalletAddress,
		Ordinals: keys.OrdAddress,
		Identity: keys.IdentityAddress,
	}
}

// HistoryEntry is one row of the displayed transaction history. Synthetic
// entries represent confirmed ledger events whose underlying transaction
// record has not been written yet, eg. an incoming transfer visible through
// its resulting output only.
type HistoryEntry struct {
	TxID        string
	Description string
	Status      string
	Amount      int64
	BlockHeight int64
	Confirmed   bool
	Synthetic   bool
	CreatedAt   time.Time
}

// SyncResult is the outcome of one reconciliation, published on the sync
// diagnostics channel.
type SyncResult struct {
	AccountID string
	Mode      SyncMode
	Cancelled bool
	UtxoCount int
	Balances  map[string]uint64
	Cause     SyncFailureCause
	Err       error
}

// Ok returns whether the reconciliation completed without error. A cancelled
// run is not an error: its row-level writes are valid, only aggregate
// publication was skipped.
func (r *SyncResult) Ok() bool {
	return r.Err == nil
}

// AccountSnapshot is the read view of the published session state: the
// active account, its key material and its cached aggregates. Keys and
// balances are always mutually consistent with the account id.
type AccountSnapshot struct {
	AccountID   string
	AccountName string
	Keys        *ports.PublicKeySet
	Balances    map[string]uint64
	Spendable   []domain.Utxo
	History     []HistoryEntry
	Epoch       uint64
}

// AggregatePublisher receives the aggregates recomputed by a reconciliation
// that was not cancelled. The implementation decides whether they still
// apply to the account being displayed.
type AggregatePublisher interface {
	PublishAggregates(
		accountID string,
		balances map[string]uint64,
		spendable []domain.Utxo,
		history []HistoryEntry,
	)
}
