package dbbadger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/internal/core/domain"
)

func TestAddAndGetAccount(t *testing.T) {
	repoManager, clk := newTestRepoManager(t)
	repo := repoManager.AccountRepository()

	account, err := domain.NewAccount("Main", 0, clk.Now())
	require.NoError(t, err)
	require.NoError(t, repo.AddAccount(ctx, account))

	got, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Name, got.Name)
	assert.Equal(t, account.DerivationIndex, got.DerivationIndex)

	got, err = repo.GetAccountByName(ctx, "Main")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	_, err = repo.GetAccount(ctx, "missing")
	assert.EqualError(t, err, domain.ErrAccountNotFound.Error())

	duplicate, err := domain.NewAccount("Main", 1, clk.Now())
	require.NoError(t, err)
	err = repo.AddAccount(ctx, duplicate)
	assert.EqualError(t, err, domain.ErrAccountNameAlreadyTaken.Error())
}

func TestSetActiveAccountIsExclusive(t *testing.T) {
	repoManager, clk := newTestRepoManager(t)
	repo := repoManager.AccountRepository()

	first, err := domain.NewAccount("First", 0, clk.Now())
	require.NoError(t, err)
	second, err := domain.NewAccount("Second", 1, clk.Now())
	require.NoError(t, err)
	require.NoError(t, repo.AddAccount(ctx, first))
	require.NoError(t, repo.AddAccount(ctx, second))

	_, err = repo.GetActiveAccount(ctx)
	assert.EqualError(t, err, domain.ErrAccountNotFound.Error())

	require.NoError(t, repo.SetActiveAccount(ctx, first.ID))
	active, err := repo.GetActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	clk.SetTime(clk.Now().Add(1))
	require.NoError(t, repo.SetActiveAccount(ctx, second.ID))

	// Exactly one account is active after the switch.
	accounts, err := repo.GetAllAccounts(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, a := range accounts {
		if a.Active {
			activeCount++
			assert.Equal(t, second.ID, a.ID)
		}
	}
	assert.Equal(t, 1, activeCount)

	active, err = repo.GetActiveAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, clk.Now(), active.LastAccessedAt)

	err = repo.SetActiveAccount(ctx, "missing")
	assert.EqualError(t, err, domain.ErrAccountNotFound.Error())
}

func TestUpdateAccount(t *testing.T) {
	repoManager, clk := newTestRepoManager(t)
	repo := repoManager.AccountRepository()

	account, err := domain.NewAccount("Main", 0, clk.Now())
	require.NoError(t, err)
	require.NoError(t, repo.AddAccount(ctx, account))

	err = repo.UpdateAccount(
		ctx, account.ID,
		func(a *domain.Account) (*domain.Account, error) {
			if err := a.Rename("Savings"); err != nil {
				return nil, err
			}
			return a, nil
		},
	)
	require.NoError(t, err)

	got, err := repo.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Savings", got.Name)
}

func TestAccountSettings(t *testing.T) {
	repoManager, _ := newTestRepoManager(t)
	repo := repoManager.AccountRepository()

	require.NoError(t, repo.SetSetting(ctx, "acc1", "balance_hint.default", "8000"))
	require.NoError(t, repo.SetSetting(ctx, "acc1", "fee_rate", "0.05"))
	require.NoError(t, repo.SetSetting(ctx, "acc2", "fee_rate", "0.10"))

	value, err := repo.GetSetting(ctx, "acc1", "balance_hint.default")
	require.NoError(t, err)
	assert.Equal(t, "8000", value)

	// Overwrite in place.
	require.NoError(t, repo.SetSetting(ctx, "acc1", "fee_rate", "0.07"))
	value, err = repo.GetSetting(ctx, "acc1", "fee_rate")
	require.NoError(t, err)
	assert.Equal(t, "0.07", value)

	all, err := repo.GetAllSettings(ctx, "acc1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.GetSetting(ctx, "acc1", "missing")
	assert.EqualError(t, err, domain.ErrSettingNotFound.Error())

	require.NoError(t, repo.DeleteSettings(ctx, "acc1"))
	all, err = repo.GetAllSettings(ctx, "acc1")
	require.NoError(t, err)
	assert.Empty(t, all)

	value, err = repo.GetSetting(ctx, "acc2", "fee_rate")
	require.NoError(t, err)
	assert.Equal(t, "0.10", value)
}

func TestDeleteAccountCascadeInTransaction(t *testing.T) {
	repoManager, clk := newTestRepoManager(t)

	account, err := domain.NewAccount("Main", 0, clk.Now())
	require.NoError(t, err)
	require.NoError(t, repoManager.AccountRepository().AddAccount(ctx, account))
	require.NoError(t, repoManager.UtxoRepository().UpsertUtxos(ctx, []domain.Utxo{
		newTestUtxoRow(account.ID, "tx1", 0, 1000, domain.BasketDefault),
	}))
	require.NoError(t, repoManager.TransactionRepository().AddTransaction(
		ctx, &domain.Transaction{
			TxID: "tx1", AccountID: account.ID, Status: domain.TxStatusConfirmed,
		},
	))
	require.NoError(t, repoManager.AccountRepository().SetSetting(
		ctx, account.ID, "balance_hint.default", "1000",
	))

	_, err = repoManager.RunTransaction(
		ctx, false,
		func(ctx context.Context) (interface{}, error) {
			repo := repoManager.AccountRepository()
			if err := repoManager.UtxoRepository().DeleteUtxosForAccount(
				ctx, account.ID,
			); err != nil {
				return nil, err
			}
			if err := repoManager.TransactionRepository().DeleteTransactionsForAccount(
				ctx, account.ID,
			); err != nil {
				return nil, err
			}
			if err := repo.DeleteSettings(ctx, account.ID); err != nil {
				return nil, err
			}
			return nil, repo.DeleteAccount(ctx, account.ID)
		},
	)
	require.NoError(t, err)

	_, err = repoManager.AccountRepository().GetAccount(ctx, account.ID)
	assert.EqualError(t, err, domain.ErrAccountNotFound.Error())

	utxos, err := repoManager.UtxoRepository().GetAllUtxosForAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, utxos)

	txs, err := repoManager.TransactionRepository().GetTransactionsForAccount(
		ctx, account.ID,
	)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestRunTransactionRollsBackOnError(t *testing.T) {
	repoManager, clk := newTestRepoManager(t)

	account, err := domain.NewAccount("Main", 0, clk.Now())
	require.NoError(t, err)

	_, err = repoManager.RunTransaction(
		ctx, false,
		func(ctx context.Context) (interface{}, error) {
			if err := repoManager.AccountRepository().AddAccount(ctx, account); err != nil {
				return nil, err
			}
			return nil, assert.AnError
		},
	)
	require.Error(t, err)

	_, err = repoManager.AccountRepository().GetAccount(ctx, account.ID)
	assert.EqualError(t, err, domain.ErrAccountNotFound.Error())
}
