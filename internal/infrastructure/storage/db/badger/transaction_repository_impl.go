package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bsv-wallet/walletd/internal/core/domain"
)

type transactionRepositoryImpl struct {
	store *badgerhold.Store
}

// NewTransactionRepositoryImpl returns a badger implementation of the
// TransactionRepository interface.
func NewTransactionRepositoryImpl(
	store *badgerhold.Store,
) domain.TransactionRepository {
	return transactionRepositoryImpl{store}
}

func (r transactionRepositoryImpl) AddTransaction(
	ctx context.Context, transaction *domain.Transaction,
) error {
	if len(transaction.AccountID) == 0 {
		return domain.ErrInvalidAccountID
	}

	key := transactionKey(transaction.AccountID, transaction.TxID)
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxInsert(tx, key, *transaction)
	} else {
		err = r.store.Insert(key, *transaction)
	}
	// Re-adding the same tx for the same account is a no-op.
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return nil
	}
	return err
}

func (r transactionRepositoryImpl) GetTransaction(
	ctx context.Context, txID, accountID string,
) (*domain.Transaction, error) {
	var transaction domain.Transaction
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxGet(tx, transactionKey(accountID, txID), &transaction)
	} else {
		err = r.store.Get(transactionKey(accountID, txID), &transaction)
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r transactionRepositoryImpl) GetTransactionsForAccount(
	ctx context.Context, accountID string,
) ([]domain.Transaction, error) {
	var transactions []domain.Transaction
	query := badgerhold.Where("AccountID").Eq(accountID)
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxFind(tx, &transactions, query)
	} else {
		err = r.store.Find(&transactions, query)
	}
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r transactionRepositoryImpl) UpdateTransactionStatus(
	ctx context.Context, txID, accountID, status string, blockHeight int64,
) error {
	transaction, err := r.GetTransaction(ctx, txID, accountID)
	if err != nil {
		return err
	}

	transaction.Status = status
	transaction.BlockHeight = blockHeight

	key := transactionKey(accountID, txID)
	if tx, ok := txFromContext(ctx); ok {
		return r.store.TxUpdate(tx, key, *transaction)
	}
	return r.store.Update(key, *transaction)
}

func (r transactionRepositoryImpl) DeleteTransactionsForAccount(
	ctx context.Context, accountID string,
) error {
	query := badgerhold.Where("AccountID").Eq(accountID)
	if tx, ok := txFromContext(ctx); ok {
		return r.store.TxDeleteMatching(tx, domain.Transaction{}, query)
	}
	return r.store.DeleteMatching(domain.Transaction{}, query)
}

func transactionKey(accountID, txID string) string {
	return fmt.Sprintf("%s/%s", accountID, txID)
}
