package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/bsv-wallet/walletd/internal/core/application"
	"github.com/bsv-wallet/walletd/internal/core/domain"
	"github.com/bsv-wallet/walletd/internal/core/ports"
	dbbadger "github.com/bsv-wallet/walletd/internal/infrastructure/storage/db/badger"
	"github.com/bsv-wallet/walletd/internal/infrastructure/vault"
	"github.com/bsv-wallet/walletd/pkg/chain"
	"github.com/bsv-wallet/walletd/pkg/credentials"
)

var (
	ctx      = context.Background()
	testSeed = []byte("000102030405060708090a0b0c0d0e0f10111213")
)

const testPassword = "hunter22"

type testServices struct {
	repoManager ports.RepoManager
	vault       *vault.Vault
	creds       *credentials.Store
	source      *chain.FakeSource
	clk         *clock.TestClock
	syncSvc     application.SyncService
	session     application.SessionService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	clk := clock.NewTestClock(time.Unix(1700000000, 0))
	repoManager, err := dbbadger.NewRepoManager(t.TempDir(), nil, clk)
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)

	vlt := vault.New(&chaincfg.RegressionNetParams)
	require.NoError(t, vlt.SetSeed(testSeed))

	creds := credentials.NewStore()
	creds.SetPassword(testPassword)

	source := chain.NewFakeSource(800000)
	syncSvc := application.NewSyncService(repoManager, source, clk, 1000)
	session := application.NewSessionService(
		repoManager, vlt, creds, syncSvc, clk, time.Second,
	)

	return &testServices{
		repoManager: repoManager,
		vault:       vlt,
		creds:       creds,
		source:      source,
		clk:         clk,
		syncSvc:     syncSvc,
		session:     session,
	}
}

// waitForSync blocks until the next reconciliation outcome is observed on
// the diagnostics channel.
func waitForSync(
	t *testing.T, svc application.SyncService,
) *application.SyncResult {
	t.Helper()

	select {
	case result := <-svc.Results():
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync result")
		return nil
	}
}

// recordingPublisher captures published aggregates for assertions.
type recordingPublisher struct {
	mtx       sync.Mutex
	published []string
	balances  map[string]map[string]uint64
	history   map[string][]application.HistoryEntry
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		balances: map[string]map[string]uint64{},
		history:  map[string][]application.HistoryEntry{},
	}
}

func (p *recordingPublisher) PublishAggregates(
	accountID string,
	balances map[string]uint64,
	_ []domain.Utxo,
	history []application.HistoryEntry,
) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.published = append(p.published, accountID)
	p.balances[accountID] = balances
	p.history[accountID] = history
}

func (p *recordingPublisher) publishCount() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.published)
}
