package domain

// Basket classifies utxos by purpose. An output observed without an explicit
// classification lands in BasketDefault.
const (
	BasketDefault  = "default"
	BasketOrdinals = "ordinals"
	BasketIdentity = "identity"
	BasketLocks    = "locks"
	BasketDerived  = "derived"
)

// Spending status lifecycle of a utxo. The only legal transitions out of
// StatusPending are StatusSpent (broadcast confirmed) and back to
// StatusUnspent (broadcast failed or rolled back).
const (
	StatusUnspent = "unspent"
	StatusPending = "pending"
	StatusSpent   = "spent"
)

// Key types of the derived triple for an account.
const (
	KeyTypeWallet   = "wallet"
	KeyTypeOrdinals = "ordinals"
	KeyTypeIdentity = "identity"
)

// Baskets returns all known basket names.
func Baskets() []string {
	return []string{
		BasketDefault, BasketOrdinals, BasketIdentity, BasketLocks, BasketDerived,
	}
}

// IsValidBasket returns whether the provided name is a known basket.
func IsValidBasket(basket string) bool {
	switch basket {
	case BasketDefault, BasketOrdinals, BasketIdentity, BasketLocks, BasketDerived:
		return true
	default:
		return false
	}
}
