package chain

import (
	"sync"

	"github.com/thanhpk/randstr"
)

// FakeSource is an in-memory Source used by tests and by the simulated
// network mode. Utxos and history entries are registered per address and
// failures can be injected per method.
type FakeSource struct {
	mtx sync.RWMutex

	blockHeight int64
	utxos       map[string][]Utxo
	history     map[string][]TxHistoryEntry

	utxosErr     error
	historyErr   error
	heightErr    error
	broadcastErr error

	broadcasted [][]byte
	calls       map[string]int
}

// NewFakeSource returns an empty FakeSource at the given block height.
func NewFakeSource(blockHeight int64) *FakeSource {
	return &FakeSource{
		blockHeight: blockHeight,
		utxos:       map[string][]Utxo{},
		history:     map[string][]TxHistoryEntry{},
		calls:       map[string]int{},
	}
}

// RandomTxID returns a random 64-char hex string usable as a txid fixture.
func RandomTxID() string {
	return randstr.Hex(32)
}

// AddUtxo registers a utxo to be returned for its address.
func (f *FakeSource) AddUtxo(u Utxo) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.utxos[u.Address] = append(f.utxos[u.Address], u)
}

// AddHistoryEntry registers a history entry for an address.
func (f *FakeSource) AddHistoryEntry(address string, entry TxHistoryEntry) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.history[address] = append(f.history[address], entry)
}

// FailUtxos makes every subsequent GetUtxos call return the given error.
func (f *FakeSource) FailUtxos(err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.utxosErr = err
}

// FailHistory makes every subsequent GetTransactionHistory call return the
// given error.
func (f *FakeSource) FailHistory(err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.historyErr = err
}

// FailHeight makes every subsequent GetBlockHeight call return the given
// error.
func (f *FakeSource) FailHeight(err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.heightErr = err
}

// FailBroadcast makes every subsequent BroadcastTransaction call return the
// given error.
func (f *FakeSource) FailBroadcast(err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.broadcastErr = err
}

// Calls returns how many times the given method has been invoked.
func (f *FakeSource) Calls(method string) int {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	return f.calls[method]
}

// Broadcasted returns the raw txs handed to BroadcastTransaction.
func (f *FakeSource) Broadcasted() [][]byte {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	return f.broadcasted
}

func (f *FakeSource) GetBlockHeight() (int64, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls["GetBlockHeight"]++
	if f.heightErr != nil {
		return 0, f.heightErr
	}
	return f.blockHeight, nil
}

func (f *FakeSource) GetUtxos(address string) ([]Utxo, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls["GetUtxos"]++
	if f.utxosErr != nil {
		return nil, f.utxosErr
	}
	out := make([]Utxo, len(f.utxos[address]))
	copy(out, f.utxos[address])
	return out, nil
}

func (f *FakeSource) GetTransactionHistory(address string) ([]TxHistoryEntry, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls["GetTransactionHistory"]++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]TxHistoryEntry, len(f.history[address]))
	copy(out, f.history[address])
	return out, nil
}

func (f *FakeSource) BroadcastTransaction(rawTx []byte) (string, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.calls["BroadcastTransaction"]++
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}
	f.broadcasted = append(f.broadcasted, rawTx)
	return randstr.Hex(32), nil
}
