package dbbadger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bsv-wallet/walletd/internal/core/domain"
)

type accountRepositoryImpl struct {
	store *badgerhold.Store
	clk   clock.Clock
}

// NewAccountRepositoryImpl returns a badger implementation of the
// AccountRepository interface.
func NewAccountRepositoryImpl(
	store *badgerhold.Store, clk clock.Clock,
) domain.AccountRepository {
	return accountRepositoryImpl{store, clk}
}

func (r accountRepositoryImpl) AddAccount(
	ctx context.Context, account *domain.Account,
) error {
	if len(account.ID) == 0 {
		return domain.ErrInvalidAccountID
	}
	if _, err := r.GetAccountByName(ctx, account.Name); err == nil {
		return domain.ErrAccountNameAlreadyTaken
	}

	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxInsert(tx, account.ID, *account)
	} else {
		err = r.store.Insert(account.ID, *account)
	}
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	return err
}

func (r accountRepositoryImpl) GetAccount(
	ctx context.Context, accountID string,
) (*domain.Account, error) {
	var account domain.Account
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxGet(tx, accountID, &account)
	} else {
		err = r.store.Get(accountID, &account)
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r accountRepositoryImpl) GetAccountByName(
	ctx context.Context, name string,
) (*domain.Account, error) {
	accounts, err := r.findAccounts(ctx, badgerhold.Where("Name").Eq(name))
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return &accounts[0], nil
}

func (r accountRepositoryImpl) GetAllAccounts(
	ctx context.Context,
) ([]domain.Account, error) {
	return r.findAccounts(ctx, nil)
}

func (r accountRepositoryImpl) GetActiveAccount(
	ctx context.Context,
) (*domain.Account, error) {
	accounts, err := r.findAccounts(ctx, badgerhold.Where("Active").Eq(true))
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return &accounts[0], nil
}

// SetActiveAccount deactivates whichever account is currently active and
// activates the target in the same store transaction, so no observer can
// ever see zero or two active accounts.
func (r accountRepositoryImpl) SetActiveAccount(
	ctx context.Context, accountID string,
) error {
	if tx, ok := txFromContext(ctx); ok {
		return r.setActiveAccount(tx, accountID)
	}
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		return r.setActiveAccount(tx, accountID)
	})
}

func (r accountRepositoryImpl) setActiveAccount(
	tx *badger.Txn, accountID string,
) error {
	var target domain.Account
	if err := r.store.TxGet(tx, accountID, &target); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.ErrAccountNotFound
		}
		return err
	}

	var active []domain.Account
	if err := r.store.TxFind(
		tx, &active, badgerhold.Where("Active").Eq(true),
	); err != nil {
		return err
	}
	for i := range active {
		if active[i].ID == accountID {
			continue
		}
		active[i].Active = false
		if err := r.store.TxUpdate(tx, active[i].ID, active[i]); err != nil {
			return err
		}
	}

	target.Active = true
	target.Touch(r.clk.Now())
	return r.store.TxUpdate(tx, accountID, target)
}

func (r accountRepositoryImpl) UpdateAccount(
	ctx context.Context,
	accountID string,
	updateFn func(a *domain.Account) (*domain.Account, error),
) error {
	account, err := r.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	updated, err := updateFn(account)
	if err != nil {
		return err
	}

	if tx, ok := txFromContext(ctx); ok {
		return r.store.TxUpdate(tx, accountID, *updated)
	}
	return r.store.Update(accountID, *updated)
}

func (r accountRepositoryImpl) DeleteAccount(
	ctx context.Context, accountID string,
) error {
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxDelete(tx, accountID, domain.Account{})
	} else {
		err = r.store.Delete(accountID, domain.Account{})
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return domain.ErrAccountNotFound
	}
	return err
}

func (r accountRepositoryImpl) GetSetting(
	ctx context.Context, accountID, key string,
) (string, error) {
	var setting domain.AccountSetting
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxGet(tx, settingKey(accountID, key), &setting)
	} else {
		err = r.store.Get(settingKey(accountID, key), &setting)
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return "", domain.ErrSettingNotFound
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (r accountRepositoryImpl) SetSetting(
	ctx context.Context, accountID, key, value string,
) error {
	setting := domain.AccountSetting{
		AccountID: accountID,
		Key:       key,
		Value:     value,
	}
	if tx, ok := txFromContext(ctx); ok {
		return r.store.TxUpsert(tx, settingKey(accountID, key), setting)
	}
	return r.store.Upsert(settingKey(accountID, key), setting)
}

func (r accountRepositoryImpl) GetAllSettings(
	ctx context.Context, accountID string,
) (map[string]string, error) {
	var settings []domain.AccountSetting
	query := badgerhold.Where("AccountID").Eq(accountID)
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxFind(tx, &settings, query)
	} else {
		err = r.store.Find(&settings, query)
	}
	if err != nil {
		return nil, err
	}

	all := make(map[string]string, len(settings))
	for _, s := range settings {
		all[s.Key] = s.Value
	}
	return all, nil
}

func (r accountRepositoryImpl) DeleteSettings(
	ctx context.Context, accountID string,
) error {
	query := badgerhold.Where("AccountID").Eq(accountID)
	if tx, ok := txFromContext(ctx); ok {
		return r.store.TxDeleteMatching(tx, domain.AccountSetting{}, query)
	}
	return r.store.DeleteMatching(domain.AccountSetting{}, query)
}

func (r accountRepositoryImpl) findAccounts(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.Account, error) {
	var accounts []domain.Account
	var err error
	if tx, ok := txFromContext(ctx); ok {
		err = r.store.TxFind(tx, &accounts, query)
	} else {
		err = r.store.Find(&accounts, query)
	}
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func settingKey(accountID, key string) string {
	return fmt.Sprintf("%s/%s", accountID, key)
}
