package application

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
	"github.com/bsv-wallet/walletd/pkg/chain"
	"github.com/bsv-wallet/walletd/pkg/circuitbreaker"
)

// TxBuilder assembles and signs a raw spending transaction from the
// selected inputs. Implementations receive an opaque signer, private key
// material never crosses this boundary.
type TxBuilder interface {
	Build(
		inputs []domain.Utxo,
		toAddress string,
		satoshis, fee uint64,
		changeAddress string,
		signer ports.Signer,
	) (rawTx []byte, txID string, err error)
}

// SpendService drives the three-phase spending protocol: inputs are
// reserved (pending) before broadcast, then either confirmed spent or rolled
// back to unspent depending on the broadcast outcome. A crash between the
// phases leaves pending rows behind, which SweepStuckPending reclaims.
type SpendService interface {
	// Send builds, reserves and broadcasts a spending transaction from the
	// spendable utxos of the given basket.
	Send(
		ctx context.Context,
		accountID, basket, toAddress string,
		satoshis uint64,
		description string,
	) (*domain.Transaction, error)
	// FreezeUtxo toggles the user-controlled freeze flag of a utxo.
	FreezeUtxo(
		ctx context.Context, key domain.UtxoKey, accountID string, frozen bool,
	) error
	// SweepStuckPending rolls back utxos held in pending longer than the
	// configured threshold and returns how many were reclaimed.
	SweepStuckPending(ctx context.Context, accountID string) (int, error)
}

type spendService struct {
	repoManager    ports.RepoManager
	vault          ports.KeyVault
	source         chain.Source
	builder        TxBuilder
	selector       *CoinSelector
	clk            clock.Clock
	breaker        *gobreaker.CircuitBreaker
	stuckThreshold time.Duration
}

// NewSpendService returns a SpendService broadcasting through the given
// source. Pending reservations older than stuckThreshold are considered
// stuck.
func NewSpendService(
	repoManager ports.RepoManager,
	vault ports.KeyVault,
	source chain.Source,
	builder TxBuilder,
	selector *CoinSelector,
	clk clock.Clock,
	stuckThreshold time.Duration,
) SpendService {
	return &spendService{
		repoManager:    repoManager,
		vault:          vault,
		source:         source,
		builder:        builder,
		selector:       selector,
		clk:            clk,
		breaker:        circuitbreaker.NewCircuitBreaker("broadcast"),
		stuckThreshold: stuckThreshold,
	}
}

func (s *spendService) Send(
	ctx context.Context,
	accountID, basket, toAddress string,
	satoshis uint64,
	description string,
) (*domain.Transaction, error) {
	account, err := s.repoManager.AccountRepository().GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	spendable, err := s.repoManager.UtxoRepository().GetSpendableUtxos(
		ctx, basket, accountID,
	)
	if err != nil {
		return nil, err
	}

	selected, fee, change, err := s.selector.Select(spendable, satoshis)
	if err != nil {
		return nil, err
	}

	keys, err := s.vault.DeriveForAccount(account.DerivationIndex)
	if err != nil {
		return nil, err
	}
	signer, err := s.vault.SignerForAccount(
		account.DerivationIndex, domain.KeyTypeWallet,
	)
	if err != nil {
		return nil, err
	}

	rawTx, txID, err := s.builder.Build(
		selected, toAddress, satoshis, fee, keys.WalletAddress, signer,
	)
	if err != nil {
		return nil, fmt.Errorf("building transaction: %w", err)
	}

	utxoKeys := make([]domain.UtxoKey, 0, len(selected))
	for _, u := range selected {
		utxoKeys = append(utxoKeys, u.Key())
	}

	// Phase one: reserve the inputs before anything leaves the process.
	if err := s.repoManager.UtxoRepository().MarkUtxosPending(
		ctx, utxoKeys, accountID, txID,
	); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		TxID:        txID,
		AccountID:   accountID,
		RawTx:       rawTx,
		Description: description,
		Status:      domain.TxStatusBroadcast,
		Amount:      -int64(satoshis + fee),
		CreatedAt:   s.clk.Now(),
	}
	if err := s.repoManager.TransactionRepository().AddTransaction(
		ctx, tx,
	); err != nil {
		s.rollback(ctx, utxoKeys, accountID, txID)
		return nil, err
	}

	// Phase two: broadcast. The outcome decides between confirm and
	// rollback.
	if _, err := s.breaker.Execute(func() (interface{}, error) {
		return s.source.BroadcastTransaction(rawTx)
	}); err != nil {
		s.rollback(ctx, utxoKeys, accountID, txID)
		if statusErr := s.repoManager.TransactionRepository().UpdateTransactionStatus(
			ctx, txID, accountID, domain.TxStatusFailed, 0,
		); statusErr != nil {
			log.WithError(statusErr).Warnf(
				"failed to mark transaction %s failed", txID,
			)
		}
		return nil, fmt.Errorf("broadcasting transaction %s: %w", txID, err)
	}

	// Phase three: the inputs are gone for good.
	if err := s.repoManager.UtxoRepository().ConfirmUtxosSpent(
		ctx, utxoKeys, accountID, txID,
	); err != nil {
		return nil, err
	}
	if err := s.repoManager.TransactionRepository().UpdateTransactionStatus(
		ctx, txID, accountID, domain.TxStatusUnconfirmed, 0,
	); err != nil {
		log.WithError(err).Warnf(
			"failed to update status of transaction %s", txID,
		)
	}
	tx.Status = domain.TxStatusUnconfirmed

	log.Infof(
		"sent %d satoshis (+%d fee, %d change) from account %s in tx %s",
		satoshis, fee, change, accountID, txID,
	)
	return tx, nil
}

func (s *spendService) FreezeUtxo(
	ctx context.Context, key domain.UtxoKey, accountID string, frozen bool,
) error {
	return s.repoManager.UtxoRepository().SetUtxoSpendable(
		ctx, key, accountID, !frozen,
	)
}

func (s *spendService) SweepStuckPending(
	ctx context.Context, accountID string,
) (int, error) {
	stuck, err := s.repoManager.UtxoRepository().GetStuckPendingUtxos(
		ctx, accountID, s.stuckThreshold,
	)
	if err != nil {
		return 0, err
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	keys := make([]domain.UtxoKey, 0, len(stuck))
	for _, u := range stuck {
		keys = append(keys, u.Key())
	}
	if err := s.repoManager.UtxoRepository().RollbackPendingUtxos(
		ctx, keys, accountID,
	); err != nil {
		return 0, err
	}

	log.Infof(
		"reclaimed %d stuck pending utxos for account %s", len(stuck), accountID,
	)
	return len(stuck), nil
}

func (s *spendService) rollback(
	ctx context.Context, keys []domain.UtxoKey, accountID, txID string,
) {
	if err := s.repoManager.UtxoRepository().RollbackPendingUtxos(
		ctx, keys, accountID,
	); err != nil {
		log.WithError(err).Errorf(
			"failed to roll back pending utxos of transaction %s", txID,
		)
	}
}
