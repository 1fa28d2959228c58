package application

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bsv-wallet/walletd/internal/core/domain"
)

// P2PKH transaction size estimation constants, in bytes.
const (
	txBaseSize   = 10
	txInputSize  = 148
	txOutputSize = 34
)

// CoinSelector picks the inputs of a spending transaction with a
// largest-first strategy and computes the fee they incur.
type CoinSelector struct {
	feePerKB decimal.Decimal
}

// NewCoinSelector returns a selector charging the given fee rate in satoshis
// per kilobyte of estimated transaction size.
func NewCoinSelector(feePerKB decimal.Decimal) *CoinSelector {
	return &CoinSelector{feePerKB: feePerKB}
}

// Select returns the inputs covering target plus the fee their number
// incurs, the fee itself and the change left over. The fee grows with every
// input added, so it is re-evaluated as the selection grows. Returns
// ErrInsufficientFunds when the utxos cannot cover the total.
func (s *CoinSelector) Select(
	utxos []domain.Utxo, target uint64,
) ([]domain.Utxo, uint64, uint64, error) {
	sorted := make([]domain.Utxo, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Satoshis > sorted[j].Satoshis
	})

	var total uint64
	selected := make([]domain.Utxo, 0, len(sorted))
	for _, u := range sorted {
		selected = append(selected, u)
		total += u.Satoshis

		// Destination plus change output.
		fee := s.Fee(len(selected), 2)
		if total >= target+fee {
			return selected, fee, total - target - fee, nil
		}
	}
	return nil, 0, 0, ErrInsufficientFunds
}

// Fee returns the fee in satoshis of a transaction with the given number of
// P2PKH inputs and outputs, rounded up.
func (s *CoinSelector) Fee(inputs, outputs int) uint64 {
	size := txBaseSize + txInputSize*inputs + txOutputSize*outputs
	fee := s.feePerKB.
		Mul(decimal.NewFromInt(int64(size))).
		Div(decimal.NewFromInt(1000)).
		Ceil()
	return uint64(fee.IntPart())
}
