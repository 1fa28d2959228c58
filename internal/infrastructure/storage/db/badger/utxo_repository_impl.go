package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bsv-wallet/walletd/internal/core/domain"
)

type utxoRepositoryImpl struct {
	store *badgerhold.Store
	clk   clock.Clock
}

// NewUtxoRepositoryImpl returns a badger implementation of the
// UtxoRepository interface.
func NewUtxoRepositoryImpl(
	store *badgerhold.Store, clk clock.Clock,
) domain.UtxoRepository {
	return utxoRepositoryImpl{store, clk}
}

func (r utxoRepositoryImpl) UpsertUtxos(
	ctx context.Context, utxos []domain.Utxo,
) error {
	for _, u := range utxos {
		if len(u.AccountID) == 0 {
			return domain.ErrInvalidAccountID
		}
	}

	if tx, ok := txFromContext(ctx); ok {
		return r.upsertUtxos(tx, utxos)
	}
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		return r.upsertUtxos(tx, utxos)
	})
}

func (r utxoRepositoryImpl) upsertUtxos(
	tx *badger.Txn, utxos []domain.Utxo,
) error {
	for _, utxo := range utxos {
		key := utxoKey(utxo.AccountID, utxo.Key())

		var existing domain.Utxo
		err := r.store.TxGet(tx, key, &existing)
		if errors.Is(err, badgerhold.ErrNotFound) {
			if len(utxo.Basket) == 0 {
				utxo.Basket = domain.BasketDefault
			}
			if len(utxo.SpendingStatus) == 0 {
				utxo.SpendingStatus = domain.StatusUnspent
			}
			if utxo.CreatedAt.IsZero() {
				utxo.CreatedAt = r.clk.Now()
			}
			if err := r.store.TxInsert(tx, key, utxo); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		// An explicit non-default basket carries stronger classification
		// intent than "default" and wins regardless of which side it comes
		// from. Spending state and the user freeze flag are local knowledge
		// and are never overwritten by a remote observation.
		if existing.Basket == domain.BasketDefault &&
			utxo.Basket != domain.BasketDefault && len(utxo.Basket) > 0 {
			existing.Basket = utxo.Basket
		}
		existing.Address = utxo.Address
		existing.Satoshis = utxo.Satoshis
		if len(utxo.LockingScript) > 0 {
			existing.LockingScript = utxo.LockingScript
		}
		if err := r.store.TxUpdate(tx, key, existing); err != nil {
			return err
		}
	}
	return nil
}

func (r utxoRepositoryImpl) GetAllUtxosForAccount(
	ctx context.Context, accountID string,
) ([]domain.Utxo, error) {
	return r.findUtxos(ctx, badgerhold.Where("AccountID").Eq(accountID))
}

func (r utxoRepositoryImpl) GetSpendableUtxos(
	ctx context.Context, basket, accountID string,
) ([]domain.Utxo, error) {
	query := badgerhold.Where("AccountID").Eq(accountID).
		And("SpendingStatus").Eq(domain.StatusUnspent).
		And("Spendable").Eq(true)
	if len(basket) > 0 {
		query = query.And("Basket").Eq(basket)
	}
	return r.findUtxos(ctx, query)
}

func (r utxoRepositoryImpl) GetBalance(
	ctx context.Context, basket, accountID string,
) (uint64, error) {
	utxos, err := r.findUtxos(
		ctx,
		badgerhold.Where("AccountID").Eq(accountID).
			And("Basket").Eq(basket).
			And("SpendingStatus").Eq(domain.StatusUnspent),
	)
	if err != nil {
		return 0, err
	}

	var balance uint64
	for _, u := range utxos {
		balance += u.Satoshis
	}
	return balance, nil
}

func (r utxoRepositoryImpl) GetBalanceByBasket(
	ctx context.Context, accountID string,
) (map[string]uint64, error) {
	utxos, err := r.findUtxos(
		ctx,
		badgerhold.Where("AccountID").Eq(accountID).
			And("SpendingStatus").Eq(domain.StatusUnspent),
	)
	if err != nil {
		return nil, err
	}

	balances := map[string]uint64{}
	for _, u := range utxos {
		balances[u.Basket] += u.Satoshis
	}
	return balances, nil
}

func (r utxoRepositoryImpl) GetUtxoForKey(
	ctx context.Context, key domain.UtxoKey, accountID string,
) (*domain.Utxo, error) {
	var utxo domain.Utxo
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxGet(tx, utxoKey(accountID, key), &utxo)
	} else {
		err = r.store.Get(utxoKey(accountID, key), &utxo)
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.ErrUtxoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &utxo, nil
}

func (r utxoRepositoryImpl) MarkUtxosPending(
	ctx context.Context, keys []domain.UtxoKey, accountID, spendTxID string,
) error {
	now := r.clk.Now()
	return r.updateUtxos(ctx, keys, accountID, func(u *domain.Utxo) error {
		return u.MarkPending(spendTxID, now)
	})
}

func (r utxoRepositoryImpl) ConfirmUtxosSpent(
	ctx context.Context, keys []domain.UtxoKey, accountID, spendTxID string,
) error {
	now := r.clk.Now()
	return r.updateUtxos(ctx, keys, accountID, func(u *domain.Utxo) error {
		return u.ConfirmSpent(spendTxID, now)
	})
}

func (r utxoRepositoryImpl) RollbackPendingUtxos(
	ctx context.Context, keys []domain.UtxoKey, accountID string,
) error {
	return r.updateUtxos(ctx, keys, accountID, func(u *domain.Utxo) error {
		return u.RollbackPending()
	})
}

func (r utxoRepositoryImpl) GetStuckPendingUtxos(
	ctx context.Context, accountID string, olderThan time.Duration,
) ([]domain.Utxo, error) {
	utxos, err := r.findUtxos(
		ctx,
		badgerhold.Where("AccountID").Eq(accountID).
			And("SpendingStatus").Eq(domain.StatusPending),
	)
	if err != nil {
		return nil, err
	}

	cutoff := r.clk.Now().Add(-olderThan)
	stuck := make([]domain.Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.PendingAt.Before(cutoff) {
			stuck = append(stuck, u)
		}
	}
	return stuck, nil
}

func (r utxoRepositoryImpl) SetUtxoSpendable(
	ctx context.Context, key domain.UtxoKey, accountID string, spendable bool,
) error {
	return r.updateUtxos(
		ctx, []domain.UtxoKey{key}, accountID,
		func(u *domain.Utxo) error {
			u.Spendable = spendable
			return nil
		},
	)
}

// RepairInconsistentUtxos fixes rows left behind by prior defects: a spent
// timestamp without the spent status, or a pending status without the
// in-flight spending txid. Returns the number of rows fixed.
func (r utxoRepositoryImpl) RepairInconsistentUtxos(
	ctx context.Context,
) (int, error) {
	utxos, err := r.findUtxos(ctx, nil)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, u := range utxos {
		repaired := u
		switch {
		case !u.SpentAt.IsZero() && u.SpendingStatus != domain.StatusSpent:
			repaired.SpendingStatus = domain.StatusSpent
			repaired.PendingSpendTxID = ""
			repaired.PendingAt = time.Time{}
		case u.SpendingStatus == domain.StatusPending && len(u.PendingSpendTxID) == 0:
			repaired.SpendingStatus = domain.StatusUnspent
			repaired.PendingAt = time.Time{}
		default:
			continue
		}

		if err := r.putUtxo(ctx, &repaired); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

func (r utxoRepositoryImpl) DeleteUtxosForAccount(
	ctx context.Context, accountID string,
) error {
	if len(accountID) == 0 {
		return domain.ErrInvalidAccountID
	}

	query := badgerhold.Where("AccountID").Eq(accountID)
	if tx, ok := txFromContext(ctx); ok {
		return r.store.TxDeleteMatching(tx, domain.Utxo{}, query)
	}
	return r.store.DeleteMatching(domain.Utxo{}, query)
}

func (r utxoRepositoryImpl) updateUtxos(
	ctx context.Context,
	keys []domain.UtxoKey,
	accountID string,
	updateFn func(u *domain.Utxo) error,
) error {
	if tx, ok := txFromContext(ctx); ok {
		return r.updateUtxosInTx(tx, keys, accountID, updateFn)
	}
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		return r.updateUtxosInTx(tx, keys, accountID, updateFn)
	})
}

// updateUtxosInTx applies the update to all keys in one store transaction,
// so reserving several utxos for a spend either succeeds for all of them or
// leaves none reserved.
func (r utxoRepositoryImpl) updateUtxosInTx(
	tx *badger.Txn,
	keys []domain.UtxoKey,
	accountID string,
	updateFn func(u *domain.Utxo) error,
) error {
	for _, key := range keys {
		var utxo domain.Utxo
		err := r.store.TxGet(tx, utxoKey(accountID, key), &utxo)
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.ErrUtxoNotFound
		}
		if err != nil {
			return err
		}

		if err := updateFn(&utxo); err != nil {
			return err
		}
		if err := r.store.TxUpdate(tx, utxoKey(accountID, key), utxo); err != nil {
			return err
		}
	}
	return nil
}

func (r utxoRepositoryImpl) putUtxo(ctx context.Context, u *domain.Utxo) error {
	key := utxoKey(u.AccountID, u.Key())
	if tx, ok := txFromContext(ctx); ok {
		return r.store.TxUpdate(tx, key, *u)
	}
	return r.store.Update(key, *u)
}

func (r utxoRepositoryImpl) findUtxos(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.Utxo, error) {
	var utxos []domain.Utxo
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxFind(tx, &utxos, query)
	} else {
		err = r.store.Find(&utxos, query)
	}
	if err != nil {
		return nil, err
	}
	return utxos, nil
}

func utxoKey(accountID string, key domain.UtxoKey) string {
	return fmt.Sprintf("%s/%s/%d", accountID, key.TxID, key.VOut)
}
