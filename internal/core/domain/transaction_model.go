package domain

import "time"

// Transaction status values for the local history table.
const (
	TxStatusUnconfirmed = "unconfirmed"
	TxStatusConfirmed   = "confirmed"
	TxStatusBroadcast   = "broadcast"
	TxStatusFailed      = "failed"
)

// Transaction is a row of the local transaction history for an account. The
// Amount is signed: positive for incoming transfers, negative for outgoing
// ones.
type Transaction struct {
	TxID        string
	AccountID   string
	RawTx       []byte
	Description string
	Status      string
	Amount      int64
	BlockHeight int64
	CreatedAt   time.Time
}

// IsConfirmed returns whether the transaction has been included in a block.
func (t *Transaction) IsConfirmed() bool {
	return t.Status == TxStatusConfirmed && t.BlockHeight > 0
}
