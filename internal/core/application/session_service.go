package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	log "github.com/sirupsen/logrus"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
	"github.com/bsv-wallet/walletd/pkg/credentials"
	"github.com/bsv-wallet/walletd/pkg/ratelimiter"
)

// SessionService coordinates the wallet session: which account is active,
// what key material and aggregates are currently published, and the
// transition between accounts. All session state changes funnel through this
// single writer, so readers always observe an account id together with the
// keys and balances that belong to it.
type SessionService interface {
	// SwitchAccount makes the given account the active one: it resolves
	// keys, persists the activation, preloads cached aggregates, publishes
	// the new session state and kicks off a background reconciliation. A
	// switch requested while another is in flight is queued; only the
	// latest queued target is kept and it runs as soon as the in-flight one
	// finishes. A failed switch leaves the previous session state fully
	// intact.
	SwitchAccount(ctx context.Context, accountID string) error
	// CreateAccount derives a fresh account at the next free derivation
	// index, stores it and switches to it. Requires an unsealed vault.
	CreateAccount(ctx context.Context, name string) (*domain.Account, error)
	// ImportAccount registers an account from externally supplied keys and
	// switches to it.
	ImportAccount(
		ctx context.Context, name string, keys *ports.KeySet,
	) (*domain.Account, error)
	RenameAccount(ctx context.Context, accountID, name string) error
	// DeleteAccount removes the account and all of its cached ledger data
	// in one atomic pass. If the deleted account was active, the session
	// moves to the most recently accessed survivor; deleting the last
	// account locks the session and wipes the credential.
	DeleteAccount(ctx context.Context, accountID string) error
	// Unlock stores the session password and restores the session of the
	// active account. The password is verified against the account's key
	// blob before being committed to the credential slot. Repeated wrong
	// passwords trigger an exponential lockout, surfaced as
	// ErrUnlockThrottled.
	Unlock(ctx context.Context, password string) error
	// Lock wipes the vault and the credential slot and unpublishes key
	// material. Cached aggregates stay visible.
	Lock()
	// ActiveSnapshot returns a consistent copy of the published session
	// state.
	ActiveSnapshot() *AccountSnapshot
	// Bootstrap repairs inconsistent ledger rows and restores the session
	// of the persisted active account, if its keys are resolvable.
	Bootstrap(ctx context.Context) error

	AggregatePublisher
}

type sessionService struct {
	repoManager   ports.RepoManager
	vault         ports.KeyVault
	credentials   *credentials.Store
	keyResolver   KeyResolver
	syncSvc       SyncService
	clk           clock.Clock
	rotateTimeout time.Duration
	unlockLimiter *ratelimiter.Limiter

	mtx           sync.Mutex
	switching     bool
	pendingTarget string
	epoch         uint64

	// Published state, guarded by mtx. Keys and aggregates are always
	// installed before the account id they belong to.
	keys       *ports.PublicKeySet
	balances   map[string]uint64
	spendable  []domain.Utxo
	history    []HistoryEntry
	activeID   string
	activeName string
}

// NewSessionService returns the single session coordinator of the process,
// registered as the aggregate publisher of the given sync service.
func NewSessionService(
	repoManager ports.RepoManager,
	vault ports.KeyVault,
	creds *credentials.Store,
	syncSvc SyncService,
	clk clock.Clock,
	rotateTimeout time.Duration,
) SessionService {
	svc := &sessionService{
		repoManager:   repoManager,
		vault:         vault,
		credentials:   creds,
		keyResolver:   NewKeyResolver(vault, creds),
		syncSvc:       syncSvc,
		clk:           clk,
		rotateTimeout: rotateTimeout,
		unlockLimiter: ratelimiter.New(clk),
		balances:      map[string]uint64{},
	}
	syncSvc.RegisterPublisher(svc)
	return svc
}

func (s *sessionService) SwitchAccount(
	ctx context.Context, accountID string,
) error {
	s.mtx.Lock()
	if s.switching {
		// Latest wins: a queued target replaces any previously queued one.
		s.pendingTarget = accountID
		s.mtx.Unlock()
		log.Debugf("switch to account %s queued behind in-flight switch", accountID)
		return nil
	}
	s.switching = true
	s.mtx.Unlock()

	err := s.runSwitch(ctx, accountID)
	s.drainPending(ctx)
	return err
}

// drainPending runs queued switch targets until none is left. Targets are
// processed on the calling goroutine, so the queue depth stays bounded at
// one regardless of how many switches were requested mid-flight.
func (s *sessionService) drainPending(ctx context.Context) {
	for {
		s.mtx.Lock()
		target := s.pendingTarget
		s.pendingTarget = ""
		if len(target) == 0 || target == s.activeID {
			s.switching = false
			s.mtx.Unlock()
			return
		}
		s.mtx.Unlock()

		if err := s.runSwitch(ctx, target); err != nil {
			log.WithError(err).Warnf("queued switch to account %s failed", target)
		}
	}
}

func (s *sessionService) runSwitch(ctx context.Context, accountID string) error {
	account, err := s.repoManager.AccountRepository().GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	// Keys are resolved before anything is persisted or published: a
	// failure here must leave the previous session untouched.
	keys, err := s.keyResolver.ResolveKeys(ctx, account)
	if err != nil {
		return fmt.Errorf("resolving keys for account %s: %w", accountID, err)
	}

	if err := s.repoManager.AccountRepository().SetActiveAccount(
		ctx, accountID,
	); err != nil {
		return err
	}

	// Bumping the epoch cancels any in-flight reconciliation and marks the
	// preload of any superseded switch stale.
	start := s.bumpEpoch()

	data := s.preload(ctx, account, start)

	s.mtx.Lock()
	if s.epoch != start {
		// Superseded by a newer switch, which now owns the published state.
		s.mtx.Unlock()
		return nil
	}
	s.keys = keys
	s.balances = data.balances
	s.spendable = data.spendable
	s.history = data.history
	s.activeID = account.ID
	s.activeName = account.Name
	s.epoch++
	syncEpoch := s.epoch
	s.mtx.Unlock()

	s.rotateSession(account.ID)

	isCancelled := func() bool {
		s.mtx.Lock()
		defer s.mtx.Unlock()
		return s.epoch != syncEpoch
	}
	go s.syncSvc.Sync(
		context.Background(), account, AddressesFromKeys(keys),
		SyncModeIncremental, isCancelled,
	)

	log.Infof("switched to account %s (%s)", account.Name, account.ID)
	return nil
}

type preloadData struct {
	balances  map[string]uint64
	spendable []domain.Utxo
	history   []HistoryEntry
}

// preload reads the cached aggregates of the account for immediate display.
// Every sub-step checks the epoch before applying its result, so a preload
// superseded by a newer switch contributes nothing. Read failures are soft:
// the session still switches, balances fall back to the persisted hints.
func (s *sessionService) preload(
	ctx context.Context, account *domain.Account, epoch uint64,
) preloadData {
	data := preloadData{balances: map[string]uint64{}}

	balances, err := s.repoManager.UtxoRepository().GetBalanceByBasket(
		ctx, account.ID,
	)
	if err != nil {
		log.WithError(err).Warnf(
			"preload: falling back to balance hints for account %s", account.ID,
		)
		balances = s.balanceHints(ctx, account.ID)
	}
	if s.epochIs(epoch) {
		data.balances = balances
	}

	spendable, err := s.repoManager.UtxoRepository().GetSpendableUtxos(
		ctx, "", account.ID,
	)
	if err != nil {
		log.WithError(err).Warnf(
			"preload: failed to read spendable utxos for account %s", account.ID,
		)
	} else if s.epochIs(epoch) {
		data.spendable = spendable
	}

	txs, err := s.repoManager.TransactionRepository().GetTransactionsForAccount(
		ctx, account.ID,
	)
	if err != nil {
		log.WithError(err).Warnf(
			"preload: failed to read history for account %s", account.ID,
		)
	} else if s.epochIs(epoch) {
		history := make([]HistoryEntry, 0, len(txs))
		for i := range txs {
			history = append(history, historyEntryFromTx(&txs[i]))
		}
		sortHistory(history)
		data.history = history
	}

	return data
}

func (s *sessionService) balanceHints(
	ctx context.Context, accountID string,
) map[string]uint64 {
	hints := map[string]uint64{}
	settings, err := s.repoManager.AccountRepository().GetAllSettings(
		ctx, accountID,
	)
	if err != nil {
		return hints
	}
	for key, value := range settings {
		if !strings.HasPrefix(key, balanceHintSettingPrefix) {
			continue
		}
		balance, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			continue
		}
		hints[strings.TrimPrefix(key, balanceHintSettingPrefix)] = balance
	}
	return hints
}

// rotateSession renews the vault session token. A slow or failing rotation
// must not block the switch, so it runs under a short deadline and failures
// are logged and swallowed.
func (s *sessionService) rotateSession(accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.rotateTimeout)
	defer cancel()
	if err := s.vault.RotateSession(ctx, accountID); err != nil {
		log.WithError(err).Warnf(
			"session rotation for account %s failed", accountID,
		)
	}
}

// PublishAggregates installs aggregates recomputed by a reconciliation,
// provided the account is still the displayed one.
func (s *sessionService) PublishAggregates(
	accountID string,
	balances map[string]uint64,
	spendable []domain.Utxo,
	history []HistoryEntry,
) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if accountID != s.activeID {
		return
	}
	s.balances = balances
	s.spendable = spendable
	s.history = history
}

func (s *sessionService) CreateAccount(
	ctx context.Context, name string,
) (*domain.Account, error) {
	nextIndex, err := s.nextDerivationIndex(ctx)
	if err != nil {
		return nil, err
	}

	account, err := domain.NewAccount(name, nextIndex, s.clk.Now())
	if err != nil {
		return nil, err
	}

	keySet, err := s.vault.ExportKeySet(nextIndex)
	if err != nil {
		return nil, fmt.Errorf("deriving keys for new account: %w", err)
	}
	account.IdentityAddress = keySet.IdentityAddress

	if err := s.attachEncryptedKeys(account, keySet); err != nil {
		return nil, err
	}

	if err := s.repoManager.AccountRepository().AddAccount(ctx, account); err != nil {
		return nil, err
	}
	log.Infof("created account %s (%s)", account.Name, account.ID)

	if err := s.SwitchAccount(ctx, account.ID); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *sessionService) ImportAccount(
	ctx context.Context, name string, keys *ports.KeySet,
) (*domain.Account, error) {
	nextIndex, err := s.nextDerivationIndex(ctx)
	if err != nil {
		return nil, err
	}

	account, err := domain.NewAccount(name, nextIndex, s.clk.Now())
	if err != nil {
		return nil, err
	}
	account.IdentityAddress = keys.IdentityAddress

	// Imported keys are not derivable from the seed, the vault must hold
	// them explicitly for the lifetime of the process.
	if err := s.vault.StoreKeys(keys, nextIndex); err != nil {
		return nil, fmt.Errorf("storing imported keys: %w", err)
	}

	if err := s.attachEncryptedKeys(account, keys); err != nil {
		return nil, err
	}

	if err := s.repoManager.AccountRepository().AddAccount(ctx, account); err != nil {
		return nil, err
	}
	log.Infof("imported account %s (%s)", account.Name, account.ID)

	if err := s.SwitchAccount(ctx, account.ID); err != nil {
		return nil, err
	}
	return account, nil
}

// attachEncryptedKeys stores the password-encrypted key blob on the account
// when a session password is available. Without one the account stays
// blob-less and only the seeded vault can serve its keys.
func (s *sessionService) attachEncryptedKeys(
	account *domain.Account, keys *ports.KeySet,
) error {
	password, ok := s.credentials.Password()
	if !ok {
		return nil
	}
	blob, err := EncryptKeySet(keys, password)
	if err != nil {
		return fmt.Errorf("encrypting key blob: %w", err)
	}
	account.EncryptedKeys = blob
	return nil
}

func (s *sessionService) nextDerivationIndex(ctx context.Context) (uint32, error) {
	accounts, err := s.repoManager.AccountRepository().GetAllAccounts(ctx)
	if err != nil {
		return 0, err
	}
	next := uint32(0)
	for _, a := range accounts {
		if a.DerivationIndex >= next {
			next = a.DerivationIndex + 1
		}
	}
	return next, nil
}

func (s *sessionService) RenameAccount(
	ctx context.Context, accountID, name string,
) error {
	if existing, err := s.repoManager.AccountRepository().GetAccountByName(
		ctx, name,
	); err == nil && existing.ID != accountID {
		return domain.ErrAccountNameAlreadyTaken
	}

	if err := s.repoManager.AccountRepository().UpdateAccount(
		ctx, accountID,
		func(a *domain.Account) (*domain.Account, error) {
			if err := a.Rename(name); err != nil {
				return nil, err
			}
			return a, nil
		},
	); err != nil {
		return err
	}

	s.mtx.Lock()
	if s.activeID == accountID {
		s.activeName = name
	}
	s.mtx.Unlock()
	return nil
}

func (s *sessionService) DeleteAccount(
	ctx context.Context, accountID string,
) error {
	repo := s.repoManager.AccountRepository()
	account, err := repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if _, err := s.repoManager.RunTransaction(
		ctx, false,
		func(ctx context.Context) (interface{}, error) {
			if err := s.repoManager.UtxoRepository().DeleteUtxosForAccount(
				ctx, accountID,
			); err != nil {
				return nil, err
			}
			if err := s.repoManager.TransactionRepository().DeleteTransactionsForAccount(
				ctx, accountID,
			); err != nil {
				return nil, err
			}
			if err := repo.DeleteSettings(ctx, accountID); err != nil {
				return nil, err
			}
			return nil, repo.DeleteAccount(ctx, accountID)
		},
	); err != nil {
		return err
	}
	log.Infof("deleted account %s (%s)", account.Name, account.ID)

	if !account.Active {
		return nil
	}

	survivors, err := repo.GetAllAccounts(ctx)
	if err != nil {
		return err
	}
	if len(survivors) == 0 {
		s.clearPublished()
		s.credentials.Clear()
		s.vault.Clear()
		log.Infof("last account deleted, session locked")
		return nil
	}

	// Hand the session to the most recently accessed survivor.
	next := survivors[0]
	for _, a := range survivors[1:] {
		if a.LastAccessedAt.After(next.LastAccessedAt) {
			next = a
		}
	}
	return s.SwitchAccount(ctx, next.ID)
}

func (s *sessionService) Unlock(ctx context.Context, password string) error {
	if limited, remaining := s.unlockLimiter.Check(); limited {
		return fmt.Errorf("%w: retry in %s", ErrUnlockThrottled, remaining)
	}

	account, err := s.repoManager.AccountRepository().GetActiveAccount(ctx)
	if err != nil && err != domain.ErrAccountNotFound {
		return err
	}

	// Verify the password against the active account's blob before
	// committing it to the credential slot.
	if account != nil && account.HasEncryptedKeys() && !s.vault.HasSeed() {
		if _, err := DecryptKeySet(account.EncryptedKeys, password); err != nil {
			if locked, lockout, left := s.unlockLimiter.RecordFailure(); locked {
				log.Warnf("unlock attempts locked out for %s", lockout)
			} else {
				log.Warnf("failed unlock attempt, %d left before lockout", left)
			}
			return err
		}
	}
	s.unlockLimiter.RecordSuccess()
	s.credentials.SetPassword(password)

	if account == nil {
		return nil
	}
	return s.SwitchAccount(ctx, account.ID)
}

func (s *sessionService) Lock() {
	s.credentials.Clear()
	s.vault.Clear()

	s.mtx.Lock()
	s.keys = nil
	s.epoch++
	s.mtx.Unlock()
	log.Infof("session locked")
}

func (s *sessionService) ActiveSnapshot() *AccountSnapshot {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	snapshot := &AccountSnapshot{
		AccountID:   s.activeID,
		AccountName: s.activeName,
		Balances:    make(map[string]uint64, len(s.balances)),
		Spendable:   make([]domain.Utxo, len(s.spendable)),
		History:     make([]HistoryEntry, len(s.history)),
		Epoch:       s.epoch,
	}
	if s.keys != nil {
		keys := *s.keys
		snapshot.Keys = &keys
	}
	for basket, balance := range s.balances {
		snapshot.Balances[basket] = balance
	}
	copy(snapshot.Spendable, s.spendable)
	copy(snapshot.History, s.history)
	return snapshot
}

func (s *sessionService) Bootstrap(ctx context.Context) error {
	fixed, err := s.repoManager.UtxoRepository().RepairInconsistentUtxos(ctx)
	if err != nil {
		return err
	}
	if fixed > 0 {
		log.Infof("repaired %d inconsistent utxos at startup", fixed)
	}

	account, err := s.repoManager.AccountRepository().GetActiveAccount(ctx)
	if err == domain.ErrAccountNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	// A locked wallet at startup is normal: the session is restored on the
	// first unlock instead.
	if err := s.SwitchAccount(ctx, account.ID); err != nil {
		log.WithError(err).Warnf(
			"could not restore session for account %s", account.ID,
		)
	}
	return nil
}

func (s *sessionService) bumpEpoch() uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.epoch++
	return s.epoch
}

func (s *sessionService) epochIs(epoch uint64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.epoch == epoch
}

func (s *sessionService) clearPublished() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.keys = nil
	s.balances = map[string]uint64{}
	s.spendable = nil
	s.history = nil
	s.activeID = ""
	s.activeName = ""
	s.epoch++
}
