package domain

import "time"

// Key returns the UtxoKey of the current utxo.
func (u *Utxo) Key() UtxoKey {
	return UtxoKey{
		TxID: u.TxID,
		VOut: u.VOut,
	}
}

// IsKeyEqual returns whether the provided UtxoKey matches that of the
// current utxo.
func (u *Utxo) IsKeyEqual(key UtxoKey) bool {
	return u.TxID == key.TxID && u.VOut == key.VOut
}

// IsUnspent returns whether the utxo is not spent nor reserved by an
// in-flight spend.
func (u *Utxo) IsUnspent() bool {
	return u.SpendingStatus == StatusUnspent
}

// IsPending returns whether the utxo is reserved by a broadcast that has not
// been confirmed or rolled back yet.
func (u *Utxo) IsPending() bool {
	return u.SpendingStatus == StatusPending
}

// IsSpent returns whether the utxo has been spent.
func (u *Utxo) IsSpent() bool {
	return u.SpendingStatus == StatusSpent
}

// IsSelectable returns whether the utxo is eligible for automatic coin
// selection: unspent and not frozen.
func (u *Utxo) IsSelectable() bool {
	return u.IsUnspent() && u.Spendable
}

// MarkPending reserves the utxo for the given spending transaction. Must be
// called before the transaction is broadcast so that two interleaved send
// operations cannot select the same output.
func (u *Utxo) MarkPending(spendTxID string, now time.Time) error {
	if !u.IsUnspent() {
		return ErrIllegalSpendTransition
	}

	u.SpendingStatus = StatusPending
	u.PendingSpendTxID = spendTxID
	u.PendingAt = now
	return nil
}

// ConfirmSpent transitions a pending utxo to spent once the broadcast of the
// recorded spending transaction has been confirmed.
func (u *Utxo) ConfirmSpent(spendTxID string, now time.Time) error {
	if !u.IsPending() {
		return ErrUtxoNotPending
	}
	if u.PendingSpendTxID != spendTxID {
		return ErrSpendTxMismatch
	}

	u.SpendingStatus = StatusSpent
	u.SpentTxID = spendTxID
	u.SpentAt = now
	u.PendingSpendTxID = ""
	u.PendingAt = time.Time{}
	return nil
}

// RollbackPending returns a pending utxo to the unspent state after a failed
// or rejected broadcast. The Spendable flag is left untouched so the utxo is
// once again selectable unless the user froze it.
func (u *Utxo) RollbackPending() error {
	if !u.IsPending() {
		return ErrUtxoNotPending
	}

	u.SpendingStatus = StatusUnspent
	u.PendingSpendTxID = ""
	u.PendingAt = time.Time{}
	return nil
}
