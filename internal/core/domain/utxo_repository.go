package domain

import (
	"context"
	"time"
)

// UtxoRepository is the persistent store of spendable outputs per account.
type UtxoRepository interface {
	// UpsertUtxos reconciles remote-observed utxos with any existing row for
	// the same (txid, vout, account). An explicit non-default basket wins
	// over "default"; cached metadata is refreshed in place otherwise, so an
	// output seen across multiple sync passes never yields duplicate rows.
	UpsertUtxos(ctx context.Context, utxos []Utxo) error
	GetAllUtxosForAccount(ctx context.Context, accountID string) ([]Utxo, error)
	// GetSpendableUtxos returns the unspent, unfrozen utxos of a basket,
	// eligible for coin selection.
	GetSpendableUtxos(ctx context.Context, basket, accountID string) ([]Utxo, error)
	// GetBalance sums the satoshis of unspent utxos in a basket.
	GetBalance(ctx context.Context, basket, accountID string) (uint64, error)
	// GetBalanceByBasket sums the satoshis of unspent utxos grouped by
	// basket.
	GetBalanceByBasket(ctx context.Context, accountID string) (map[string]uint64, error)
	GetUtxoForKey(ctx context.Context, key UtxoKey, accountID string) (*Utxo, error)

	// MarkUtxosPending reserves the utxos for an in-flight spending
	// transaction before it is broadcast.
	MarkUtxosPending(ctx context.Context, keys []UtxoKey, accountID, spendTxID string) error
	// ConfirmUtxosSpent transitions pending utxos to spent after their
	// broadcast has been confirmed.
	ConfirmUtxosSpent(ctx context.Context, keys []UtxoKey, accountID, spendTxID string) error
	// RollbackPendingUtxos returns pending utxos to the unspent state after
	// a failed or rejected broadcast.
	RollbackPendingUtxos(ctx context.Context, keys []UtxoKey, accountID string) error
	// GetStuckPendingUtxos returns utxos held in pending longer than the
	// given duration, eg. because the process crashed mid-send.
	GetStuckPendingUtxos(ctx context.Context, accountID string, olderThan time.Duration) ([]Utxo, error)

	// SetUtxoSpendable toggles the user-controlled freeze flag.
	SetUtxoSpendable(ctx context.Context, key UtxoKey, accountID string, spendable bool) error

	// RepairInconsistentUtxos fixes rows left in an inconsistent state by
	// prior defects and returns the number of rows fixed.
	RepairInconsistentUtxos(ctx context.Context) (int, error)
	// DeleteUtxosForAccount drops all cached utxos of an account. Used on
	// account deletion and on full-restore sync.
	DeleteUtxosForAccount(ctx context.Context, accountID string) error
}
