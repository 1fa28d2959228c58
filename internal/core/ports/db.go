package ports

import (
	"context"

	"github.com/bsv-wallet/walletd/internal/core/domain"
)

// RepoManager gives access to the persistent repositories and to their
// transactional boundary. Multi-row mutations (eg. the account deletion
// cascade) run inside a single RunTransaction call so they are applied
// atomically even if the process is interrupted mid-way.
type RepoManager interface {
	AccountRepository() domain.AccountRepository
	UtxoRepository() domain.UtxoRepository
	TransactionRepository() domain.TransactionRepository

	// RunTransaction opens a store transaction, makes it available to the
	// repositories through the handler context and commits it if the
	// handler returns no error, discarding it otherwise.
	RunTransaction(
		ctx context.Context,
		readOnly bool,
		handler func(ctx context.Context) (interface{}, error),
	) (interface{}, error)

	Close()
}

// Transaction interface defines the method to commit or discard a database
// transaction.
type Transaction interface {
	Commit() error
	Discard()
}
