package domain

import "context"

// TransactionRepository is the persistent store of the local transaction
// history per account.
type TransactionRepository interface {
	// AddTransaction inserts the transaction if no row exists yet for the
	// same (txid, account) pair, otherwise it is a no-op.
	AddTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID, accountID string) (*Transaction, error)
	GetTransactionsForAccount(ctx context.Context, accountID string) ([]Transaction, error)
	UpdateTransactionStatus(
		ctx context.Context,
		txID, accountID, status string,
		blockHeight int64,
	) error
	DeleteTransactionsForAccount(ctx context.Context, accountID string) error
}
