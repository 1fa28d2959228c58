package domain

import "time"

// UtxoKey represents the ID of a Utxo, composed by its txid and vout.
type UtxoKey struct {
	TxID string
	VOut uint32
}

// Utxo is the data structure representing a spendable output owned by one of
// the wallet accounts, together with its basket classification and its
// spending lifecycle state.
//
// A (TxID, VOut) pair is unique within an account. Utxos are created by sync
// ingestion, mutated by the three-phase spend protocol, and deleted only on
// account deletion or an explicit cache reset.
type Utxo struct {
	TxID          string
	VOut          uint32
	Satoshis      uint64
	LockingScript []byte
	Address       string
	Basket        string
	// Spendable is the user-controlled freeze toggle. It is orthogonal to
	// SpendingStatus and only affects coin selection eligibility.
	Spendable        bool
	SpendingStatus   string
	PendingSpendTxID string
	PendingAt        time.Time
	AccountID        string
	CreatedAt        time.Time
	SpentAt          time.Time
	SpentTxID        string
}
