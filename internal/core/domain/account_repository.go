package domain

import "context"

// AccountRepository is the persistent registry of wallet accounts and their
// scoped settings.
type AccountRepository interface {
	AddAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccountByName(ctx context.Context, name string) (*Account, error)
	GetAllAccounts(ctx context.Context) ([]Account, error)
	GetActiveAccount(ctx context.Context) (*Account, error)
	// SetActiveAccount deactivates the currently active account and
	// activates the given one in a single atomic pass. Either both writes
	// are applied or neither is.
	SetActiveAccount(ctx context.Context, accountID string) error
	UpdateAccount(
		ctx context.Context,
		accountID string,
		updateFn func(a *Account) (*Account, error),
	) error
	DeleteAccount(ctx context.Context, accountID string) error

	GetSetting(ctx context.Context, accountID, key string) (string, error)
	SetSetting(ctx context.Context, accountID, key, value string) error
	GetAllSettings(ctx context.Context, accountID string) (map[string]string, error)
	DeleteSettings(ctx context.Context, accountID string) error
}
