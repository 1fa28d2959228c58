package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/internal/core/domain"
)

func TestUtxoSpendLifecycle(t *testing.T) {
	u := newTestUtxo()

	err := u.MarkPending("spendTx", time.Now())
	require.NoError(t, err)
	assert.True(t, u.IsPending())
	assert.Equal(t, "spendTx", u.PendingSpendTxID)
	assert.False(t, u.IsSelectable())

	now := time.Now()
	err = u.ConfirmSpent("spendTx", now)
	require.NoError(t, err)
	assert.True(t, u.IsSpent())
	assert.Equal(t, "spendTx", u.SpentTxID)
	assert.Equal(t, now, u.SpentAt)
	assert.Empty(t, u.PendingSpendTxID)
}

func TestUtxoRollbackPreservesSpendableFlag(t *testing.T) {
	tests := []struct {
		name      string
		spendable bool
	}{
		{"unfrozen", true},
		{"frozen", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestUtxo()
			u.Spendable = tt.spendable

			require.NoError(t, u.MarkPending("spendTx", time.Now()))
			require.NoError(t, u.RollbackPending())

			assert.True(t, u.IsUnspent())
			assert.Empty(t, u.PendingSpendTxID)
			assert.Equal(t, tt.spendable, u.Spendable)
			assert.Equal(t, tt.spendable, u.IsSelectable())
		})
	}
}

func TestUtxoIllegalTransitions(t *testing.T) {
	u := newTestUtxo()

	err := u.ConfirmSpent("spendTx", time.Now())
	assert.EqualError(t, err, domain.ErrUtxoNotPending.Error())

	err = u.RollbackPending()
	assert.EqualError(t, err, domain.ErrUtxoNotPending.Error())

	require.NoError(t, u.MarkPending("spendTx", time.Now()))

	err = u.MarkPending("otherTx", time.Now())
	assert.EqualError(t, err, domain.ErrIllegalSpendTransition.Error())

	err = u.ConfirmSpent("otherTx", time.Now())
	assert.EqualError(t, err, domain.ErrSpendTxMismatch.Error())

	require.NoError(t, u.ConfirmSpent("spendTx", time.Now()))

	err = u.MarkPending("spendTx", time.Now())
	assert.EqualError(t, err, domain.ErrIllegalSpendTransition.Error())
}

func TestUtxoKey(t *testing.T) {
	u := newTestUtxo()

	key := u.Key()
	assert.Equal(t, domain.UtxoKey{TxID: "tx1", VOut: 0}, key)
	assert.True(t, u.IsKeyEqual(key))
	assert.False(t, u.IsKeyEqual(domain.UtxoKey{TxID: "tx1", VOut: 1}))
}

func newTestUtxo() *domain.Utxo {
	return &domain.Utxo{
		TxID:           "tx1",
		VOut:           0,
		Satoshis:       1000,
		Address:        "1BvzNEy8c3DCumVrqrNVtg1KBcHvmfaNa1",
		Basket:         domain.BasketDefault,
		Spendable:      true,
		SpendingStatus: domain.StatusUnspent,
		AccountID:      "acc1",
		CreatedAt:      time.Now(),
	}
}
