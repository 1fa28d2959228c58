package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/bsv-wallet/walletd/config"
	"github.com/bsv-wallet/walletd/internal/core/application"
	"github.com/bsv-wallet/walletd/internal/core/ports"
	dbbadger "github.com/bsv-wallet/walletd/internal/infrastructure/storage/db/badger"
	"github.com/bsv-wallet/walletd/internal/infrastructure/txbuilder"
	"github.com/bsv-wallet/walletd/internal/infrastructure/vault"
	"github.com/bsv-wallet/walletd/pkg/chain"
	"github.com/bsv-wallet/walletd/pkg/credentials"
)

func main() {
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	dbDir := filepath.Join(config.GetDatadir(), config.DbLocation)
	clk := clock.NewDefaultClock()
	repoManager, err := dbbadger.NewRepoManager(dbDir, nil, clk)
	if err != nil {
		log.WithError(err).Panic("error while opening database")
	}
	defer repoManager.Close()

	vlt := vault.New(config.GetNetwork())
	if seed := config.GetSeed(); len(seed) > 0 {
		if err := vlt.SetSeed(seed); err != nil {
			log.WithError(err).Panic("error while unsealing vault")
		}
	}

	creds := credentials.NewStore()
	if password := config.GetString(config.PasswordKey); len(password) > 0 {
		creds.SetPassword(password)
	}

	// The simulated source stands in until an HTTP indexer client lands.
	source := chain.NewFakeSource(0)

	syncSvc := application.NewSyncService(
		repoManager, source, clk, config.GetFloat(config.SyncRateLimitKey),
	)
	sessionSvc := application.NewSessionService(
		repoManager, vlt, creds, syncSvc, clk,
		config.GetDuration(config.SessionRotationTimeoutKey),
	)
	spendSvc := application.NewSpendService(
		repoManager, vlt, source, txbuilder.New(config.GetNetwork()),
		application.NewCoinSelector(
			decimal.NewFromFloat(config.GetFloat(config.FeePerKBKey)),
		),
		clk, config.GetDuration(config.PendingSweepThresholdKey),
	)

	ctx := context.Background()
	if err := sessionSvc.Bootstrap(ctx); err != nil {
		log.WithError(err).Panic("error while bootstrapping session")
	}

	// Reclaim utxos left reserved by an interrupted spend.
	if snapshot := sessionSvc.ActiveSnapshot(); len(snapshot.AccountID) > 0 {
		if _, err := spendSvc.SweepStuckPending(
			ctx, snapshot.AccountID,
		); err != nil {
			log.WithError(err).Warn("error while sweeping stuck pending utxos")
		}
	}

	stop := make(chan struct{})
	go syncLoop(ctx, repoManager, sessionSvc, syncSvc, stop)
	go drainDiagnostics(syncSvc, stop)

	log.Info("daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	close(stop)

	log.Info("exiting")
}

// syncLoop periodically reconciles the active account.
func syncLoop(
	ctx context.Context,
	repoManager ports.RepoManager,
	sessionSvc application.SessionService,
	syncSvc application.SyncService,
	stop <-chan struct{},
) {
	interval := config.GetDuration(config.SyncIntervalKey)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snapshot := sessionSvc.ActiveSnapshot()
			if len(snapshot.AccountID) == 0 || snapshot.Keys == nil {
				continue
			}
			account, err := repoManager.AccountRepository().GetAccount(
				ctx, snapshot.AccountID,
			)
			if err != nil {
				log.WithError(err).Warn("periodic sync: cannot load active account")
				continue
			}
			syncSvc.Sync(
				ctx, account, application.AddressesFromKeys(snapshot.Keys),
				application.SyncModeIncremental, nil,
			)
		}
	}
}

func drainDiagnostics(syncSvc application.SyncService, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case result := <-syncSvc.Results():
			if !result.Ok() {
				log.Warnf(
					"reconciliation of account %s failed (%s): %s",
					result.AccountID, result.Cause, result.Err,
				)
			}
		}
	}
}
