package dbbadger

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/bsv-wallet/walletd/internal/core/ports"
)

func newTestRepoManager(t *testing.T) (ports.RepoManager, *clock.TestClock) {
	t.Helper()

	clk := clock.NewTestClock(time.Unix(1700000000, 0))
	repoManager, err := NewRepoManager(t.TempDir(), nil, clk)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(repoManager.Close)

	return repoManager, clk
}
