package chain

import "time"

// Utxo represents a transaction output as observed by the remote ledger
// source.
type Utxo struct {
	TxID          string
	VOut          uint32
	Satoshis      uint64
	LockingScript []byte
	Address       string
	BlockHeight   int64
	Confirmed     bool
}

// TxHistoryEntry represents one transaction touching an address, as reported
// by the remote ledger source.
type TxHistoryEntry struct {
	TxID        string
	BlockHeight int64
	Confirmed   bool
	Fee         uint64
	Time        time.Time
}

// Source is the contract of the remote blockchain source of truth. All
// methods return an explicit error rather than panicking; callers decide how
// to classify and surface failures.
type Source interface {
	// GetBlockHeight returns the current tip height of the chain.
	GetBlockHeight() (int64, error)
	// GetUtxos returns the unspent outputs currently locked to the given
	// address.
	GetUtxos(address string) ([]Utxo, error)
	// GetTransactionHistory returns the list of all txs relative to the
	// given address.
	GetTransactionHistory(address string) ([]TxHistoryEntry, error)
	// BroadcastTransaction attempts to add the given raw tx to the mempool
	// and returns its tx hash.
	BroadcastTransaction(rawTx []byte) (string, error)
}
