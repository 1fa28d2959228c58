package application

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
	"github.com/bsv-wallet/walletd/pkg/chain"
	"github.com/bsv-wallet/walletd/pkg/circuitbreaker"
)

// balanceHintSettingPrefix prefixes the per-basket balance hints persisted
// after every successful reconciliation, used to render a balance
// immediately on the next session preload.
const balanceHintSettingPrefix = "balance_hint."

// SyncService reconciles the local ledger cache of an account against the
// remote source of truth and recomputes the displayed aggregates.
type SyncService interface {
	// Sync runs one reconciliation for the account. Concurrent calls for
	// the same account are serialized, different accounts proceed in
	// parallel. The isCancelled probe is consulted before any aggregate is
	// published: a cancelled run keeps its row-level writes (they are
	// scoped to the account and remain valid) but never touches displayed
	// state. A nil probe means the run cannot be cancelled.
	Sync(
		ctx context.Context,
		account *domain.Account,
		addresses AccountAddresses,
		mode SyncMode,
		isCancelled func() bool,
	) *SyncResult
	// RegisterPublisher wires the receiver of recomputed aggregates. Must
	// be called before the first Sync; typically the session service.
	RegisterPublisher(publisher AggregatePublisher)
	// Results exposes the stream of reconciliation outcomes for
	// diagnostics. Slow consumers drop results rather than blocking syncs.
	Results() <-chan *SyncResult
	// LastResult returns the most recent outcome for an account.
	LastResult(accountID string) (*SyncResult, bool)
}

type syncService struct {
	repoManager ports.RepoManager
	source      chain.Source
	clk         clock.Clock
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	publisher   AggregatePublisher

	accountLocks sync.Map

	resultsCh chan *SyncResult

	lastMtx     sync.RWMutex
	lastResults map[string]*SyncResult
}

// NewSyncService returns a SyncService pulling from the given remote source,
// rate-limited to requestsPerSecond against it.
func NewSyncService(
	repoManager ports.RepoManager,
	source chain.Source,
	clk clock.Clock,
	requestsPerSecond float64,
) SyncService {
	return &syncService{
		repoManager: repoManager,
		source:      source,
		clk:         clk,
		breaker:     circuitbreaker.NewCircuitBreaker("sync"),
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		resultsCh:   make(chan *SyncResult, 20),
		lastResults: map[string]*SyncResult{},
	}
}

func (s *syncService) RegisterPublisher(publisher AggregatePublisher) {
	s.publisher = publisher
}

func (s *syncService) Results() <-chan *SyncResult {
	return s.resultsCh
}

func (s *syncService) LastResult(accountID string) (*SyncResult, bool) {
	s.lastMtx.RLock()
	defer s.lastMtx.RUnlock()
	result, ok := s.lastResults[accountID]
	return result, ok
}

func (s *syncService) Sync(
	ctx context.Context,
	account *domain.Account,
	addresses AccountAddresses,
	mode SyncMode,
	isCancelled func() bool,
) *SyncResult {
	if account == nil || len(account.ID) == 0 {
		return s.record(&SyncResult{
			Mode:  mode,
			Cause: SyncFailureQuery,
			Err:   ErrUnscopedAccount,
		})
	}
	if isCancelled == nil {
		isCancelled = func() bool { return false }
	}

	lock, _ := s.accountLocks.LoadOrStore(account.ID, &sync.Mutex{})
	mtx := lock.(*sync.Mutex)
	mtx.Lock()
	defer mtx.Unlock()

	result := s.reconcile(ctx, account, addresses, mode, isCancelled)
	return s.record(result)
}

func (s *syncService) reconcile(
	ctx context.Context,
	account *domain.Account,
	addresses AccountAddresses,
	mode SyncMode,
	isCancelled func() bool,
) *SyncResult {
	result := &SyncResult{AccountID: account.ID, Mode: mode}

	if mode == SyncModeFullRestore {
		if err := s.repoManager.UtxoRepository().DeleteUtxosForAccount(
			ctx, account.ID,
		); err != nil {
			return s.fail(ctx, result, account, err)
		}
	}

	remoteUtxos, remoteHistory, err := s.pull(ctx, addresses)
	if err != nil {
		return s.fail(ctx, result, account, err)
	}

	utxos := make([]domain.Utxo, 0, len(remoteUtxos))
	for _, u := range remoteUtxos {
		utxos = append(utxos, domain.Utxo{
			TxID:          u.TxID,
			VOut:          u.VOut,
			Satoshis:      u.Satoshis,
			LockingScript: u.LockingScript,
			Address:       u.Address,
			Basket:        addresses.BasketForAddress(u.Address),
			Spendable:     true,
			AccountID:     account.ID,
		})
	}

	// Row-level writes are scoped to the account and stay valid even if the
	// run turns out to be cancelled: only aggregates are epoch-guarded.
	if err := s.repoManager.UtxoRepository().UpsertUtxos(ctx, utxos); err != nil {
		return s.fail(ctx, result, account, err)
	}
	result.UtxoCount = len(utxos)

	if isCancelled() {
		result.Cancelled = true
		log.Debugf(
			"sync for account %s cancelled before aggregate publication",
			account.ID,
		)
		return result
	}

	balances, err := s.repoManager.UtxoRepository().GetBalanceByBasket(
		ctx, account.ID,
	)
	if err != nil {
		return s.fail(ctx, result, account, err)
	}
	result.Balances = balances

	spendable, err := s.repoManager.UtxoRepository().GetSpendableUtxos(
		ctx, "", account.ID,
	)
	if err != nil {
		return s.fail(ctx, result, account, err)
	}

	history, err := s.rebuildHistory(ctx, account.ID, remoteHistory)
	if err != nil {
		return s.fail(ctx, result, account, err)
	}

	s.persistBalanceHints(ctx, account.ID, balances)

	// Re-check right before publication: the account may have been switched
	// away from while aggregates were recomputed.
	if isCancelled() {
		result.Cancelled = true
		return result
	}
	if s.publisher != nil {
		s.publisher.PublishAggregates(account.ID, balances, spendable, history)
	}

	log.Debugf(
		"sync for account %s completed: %d utxos, %d history entries",
		account.ID, result.UtxoCount, len(history),
	)
	return result
}

// pull fetches utxos and history for every address of the account in
// parallel, each remote call rate-limited and routed through the circuit
// breaker.
func (s *syncService) pull(
	ctx context.Context, addresses AccountAddresses,
) ([]chain.Utxo, []chain.TxHistoryEntry, error) {
	var mtx sync.Mutex
	utxos := make([]chain.Utxo, 0)
	history := make([]chain.TxHistoryEntry, 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addresses.List() {
		addr := addr
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			res, err := s.breaker.Execute(func() (interface{}, error) {
				return s.source.GetUtxos(addr)
			})
			if err != nil {
				return fmt.Errorf("fetching utxos for %s: %w", addr, err)
			}

			mtx.Lock()
			utxos = append(utxos, res.([]chain.Utxo)...)
			mtx.Unlock()
			return nil
		})
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			res, err := s.breaker.Execute(func() (interface{}, error) {
				return s.source.GetTransactionHistory(addr)
			})
			if err != nil {
				return fmt.Errorf("fetching history for %s: %w", addr, err)
			}

			mtx.Lock()
			history = append(history, res.([]chain.TxHistoryEntry)...)
			mtx.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return utxos, history, nil
}

// rebuildHistory merges the local transaction table with the remote view.
// Remote entries without a local record become synthetic rows, so incoming
// transfers show up in the history even though the wallet never built a
// transaction for them. Local confirmation status is upgraded in place when
// the remote reports a block inclusion.
func (s *syncService) rebuildHistory(
	ctx context.Context, accountID string, remote []chain.TxHistoryEntry,
) ([]HistoryEntry, error) {
	txs, err := s.repoManager.TransactionRepository().GetTransactionsForAccount(
		ctx, accountID,
	)
	if err != nil {
		return nil, err
	}

	local := make(map[string]*domain.Transaction, len(txs))
	for i := range txs {
		local[txs[i].TxID] = &txs[i]
	}

	seen := make(map[string]bool, len(remote))
	history := make([]HistoryEntry, 0, len(txs)+len(remote))
	for _, entry := range remote {
		if seen[entry.TxID] {
			continue
		}
		seen[entry.TxID] = true

		if tx, ok := local[entry.TxID]; ok {
			if entry.Confirmed && !tx.IsConfirmed() {
				if err := s.repoManager.TransactionRepository().UpdateTransactionStatus(
					ctx, tx.TxID, accountID,
					domain.TxStatusConfirmed, entry.BlockHeight,
				); err != nil {
					return nil, err
				}
				tx.Status = domain.TxStatusConfirmed
				tx.BlockHeight = entry.BlockHeight
			}
			history = append(history, historyEntryFromTx(tx))
			continue
		}

		status := domain.TxStatusUnconfirmed
		if entry.Confirmed {
			status = domain.TxStatusConfirmed
		}
		createdAt := entry.Time
		if createdAt.IsZero() {
			createdAt = s.clk.Now()
		}
		history = append(history, HistoryEntry{
			TxID:        entry.TxID,
			Status:      status,
			BlockHeight: entry.BlockHeight,
			Confirmed:   entry.Confirmed,
			Synthetic:   true,
			CreatedAt:   createdAt,
		})
	}

	// Local records the remote never mentioned, eg. a spend broadcast
	// moments ago.
	for _, tx := range txs {
		if !seen[tx.TxID] {
			history = append(history, historyEntryFromTx(&tx))
		}
	}

	sortHistory(history)
	return history, nil
}

func historyEntryFromTx(tx *domain.Transaction) HistoryEntry {
	return HistoryEntry{
		TxID:        tx.TxID,
		Description: tx.Description,
		Status:      tx.Status,
		Amount:      tx.Amount,
		BlockHeight: tx.BlockHeight,
		Confirmed:   tx.IsConfirmed(),
		CreatedAt:   tx.CreatedAt,
	}
}

// sortHistory orders entries for display: unconfirmed first, then most
// recently confirmed, local creation time breaking ties.
func sortHistory(history []HistoryEntry) {
	sort.SliceStable(history, func(i, j int) bool {
		a, b := history[i], history[j]
		if a.Confirmed != b.Confirmed {
			return !a.Confirmed
		}
		if a.BlockHeight != b.BlockHeight {
			return a.BlockHeight > b.BlockHeight
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (s *syncService) persistBalanceHints(
	ctx context.Context, accountID string, balances map[string]uint64,
) {
	repo := s.repoManager.AccountRepository()
	for basket, balance := range balances {
		if err := repo.SetSetting(
			ctx, accountID,
			balanceHintSettingPrefix+basket,
			strconv.FormatUint(balance, 10),
		); err != nil {
			log.WithError(err).Warnf(
				"failed to persist balance hint for account %s basket %s",
				accountID, basket,
			)
		}
	}
}

// fail classifies the error with a diagnostic probe and finalizes the
// result. The probe distinguishes a broken local store from an unreachable
// remote from a bad query, so the surfaced message tells the user what to
// actually do about it.
func (s *syncService) fail(
	ctx context.Context,
	result *SyncResult,
	account *domain.Account,
	err error,
) *SyncResult {
	result.Err = err
	result.Cause = s.classifyFailure(ctx, account)
	log.WithError(err).Warnf(
		"sync for account %s failed (%s)", account.ID, result.Cause,
	)
	return result
}

func (s *syncService) classifyFailure(
	ctx context.Context, account *domain.Account,
) (cause SyncFailureCause) {
	defer func() {
		if r := recover(); r != nil {
			cause = SyncFailureUnknown
		}
	}()

	if _, err := s.repoManager.AccountRepository().GetAccount(
		ctx, account.ID,
	); err != nil && err != domain.ErrAccountNotFound {
		return SyncFailureStorage
	}
	if _, err := s.source.GetBlockHeight(); err != nil {
		return SyncFailureNetwork
	}
	return SyncFailureQuery
}

func (s *syncService) record(result *SyncResult) *SyncResult {
	if len(result.AccountID) > 0 {
		s.lastMtx.Lock()
		s.lastResults[result.AccountID] = result
		s.lastMtx.Unlock()
	}

	select {
	case s.resultsCh <- result:
	default:
	}
	return result
}
