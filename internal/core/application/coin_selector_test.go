package application_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/internal/core/application"
	"github.com/bsv-wallet/walletd/internal/core/domain"
)

func testUtxoSet() []domain.Utxo {
	return []domain.Utxo{
		{TxID: "a", VOut: 0, Satoshis: 1000},
		{TxID: "b", VOut: 0, Satoshis: 5000},
		{TxID: "c", VOut: 0, Satoshis: 2000},
	}
}

func TestCoinSelectorLargestFirst(t *testing.T) {
	selector := application.NewCoinSelector(decimal.NewFromInt(50))

	selected, fee, change, err := selector.Select(testUtxoSet(), 3000)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "b", selected[0].TxID)

	// One input, two outputs: 10 + 148 + 68 = 226 bytes at 50 sat/kB.
	assert.Equal(t, uint64(12), fee)
	assert.Equal(t, uint64(5000-3000-12), change)
}

func TestCoinSelectorAccumulatesInputs(t *testing.T) {
	selector := application.NewCoinSelector(decimal.NewFromInt(50))

	selected, fee, change, err := selector.Select(testUtxoSet(), 6500)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "b", selected[0].TxID)
	assert.Equal(t, "c", selected[1].TxID)

	// Two inputs, two outputs: 10 + 296 + 68 = 374 bytes at 50 sat/kB.
	assert.Equal(t, uint64(19), fee)
	assert.Equal(t, uint64(7000-6500-19), change)
}

func TestCoinSelectorFeeGrowsWithInputs(t *testing.T) {
	selector := application.NewCoinSelector(decimal.NewFromInt(1000))

	assert.Equal(t, uint64(226), selector.Fee(1, 2))
	assert.Equal(t, uint64(374), selector.Fee(2, 2))

	// Fractional rates round up.
	fractional := application.NewCoinSelector(decimal.NewFromFloat(0.5))
	assert.Equal(t, uint64(1), fractional.Fee(1, 2))
}

func TestCoinSelectorInsufficientFunds(t *testing.T) {
	selector := application.NewCoinSelector(decimal.NewFromInt(50))

	_, _, _, err := selector.Select(testUtxoSet(), 8000)
	assert.ErrorIs(t, err, application.ErrInsufficientFunds)

	// The amount alone is covered but the fee tips it over.
	_, _, _, err = selector.Select(
		[]domain.Utxo{{TxID: "a", VOut: 0, Satoshis: 1000}}, 995,
	)
	assert.ErrorIs(t, err, application.ErrInsufficientFunds)

	_, _, _, err = selector.Select(nil, 1)
	assert.ErrorIs(t, err, application.ErrInsufficientFunds)
}
