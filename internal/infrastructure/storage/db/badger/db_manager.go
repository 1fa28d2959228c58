package dbbadger

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
)

const txContextKey = "tx"

// repoManager opens a single badgerhold store shared by all repositories so
// that multi-row mutations spanning accounts, utxos and transactions (eg.
// the account deletion cascade) commit or discard as one unit.
type repoManager struct {
	store *badgerhold.Store

	accountRepository     domain.AccountRepository
	utxoRepository        domain.UtxoRepository
	transactionRepository domain.TransactionRepository
}

// NewRepoManager opens (or creates if not existing) the badger store on disk
// and returns the manager giving access to all repositories.
func NewRepoManager(
	baseDbDir string, logger badger.Logger, clk clock.Clock,
) (ports.RepoManager, error) {
	store, err := createDb(filepath.Join(baseDbDir, "wallet"), logger)
	if err != nil {
		return nil, fmt.Errorf("opening wallet db: %w", err)
	}

	return &repoManager{
		store:                 store,
		accountRepository:     NewAccountRepositoryImpl(store, clk),
		utxoRepository:        NewUtxoRepositoryImpl(store, clk),
		transactionRepository: NewTransactionRepositoryImpl(store),
	}, nil
}

func (d *repoManager) AccountRepository() domain.AccountRepository {
	return d.accountRepository
}

func (d *repoManager) UtxoRepository() domain.UtxoRepository {
	return d.utxoRepository
}

func (d *repoManager) TransactionRepository() domain.TransactionRepository {
	return d.transactionRepository
}

// RunTransaction runs the handler with a store transaction attached to the
// context. Repositories pick it up so every operation inside the handler is
// applied atomically on commit.
func (d *repoManager) RunTransaction(
	ctx context.Context,
	readOnly bool,
	handler func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	tx := d.store.Badger().NewTransaction(!readOnly)
	defer tx.Discard()

	res, err := handler(context.WithValue(ctx, txContextKey, tx))
	if err != nil {
		return nil, err
	}

	if !readOnly {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (d *repoManager) Close() {
	d.store.Close()
}

func txFromContext(ctx context.Context) (*badger.Txn, bool) {
	tx, ok := ctx.Value(txContextKey).(*badger.Txn)
	return tx, ok
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	opts.Compression = options.ZSTD

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
