package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the local data directory to store the internal state of the daemon
	DatadirKey = "DATA_DIR_PATH"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the network to use. Either "mainnet", "testnet" or "regtest"
	NetworkKey = "NETWORK"
	// SeedHexKey is the hex-encoded wallet seed used to unseal the vault at startup
	SeedHexKey = "SEED_HEX"
	// PasswordKey is the session password for headless unlocking
	PasswordKey = "PASSWORD"
	// SyncIntervalKey is the interval between periodic reconciliations of the active account
	SyncIntervalKey = "SYNC_INTERVAL"
	// SyncRateLimitKey is the number of requests per second allowed against the remote ledger source
	SyncRateLimitKey = "SYNC_RATE_LIMIT"
	// PendingSweepThresholdKey is how long a utxo may sit in pending before being reclaimed
	PendingSweepThresholdKey = "PENDING_SWEEP_THRESHOLD"
	// SessionRotationTimeoutKey is the deadline on vault session rotation during a switch
	SessionRotationTimeoutKey = "SESSION_ROTATION_TIMEOUT"
	// FeePerKBKey is the fee rate in satoshis per kilobyte used by coin selection
	FeePerKBKey = "FEE_PER_KB"

	DbLocation = "db"
)

var vip *viper.Viper
var defaultDatadir = btcutil.AppDataDir("walletd", false)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("WALLETD")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(NetworkKey, "mainnet")
	vip.SetDefault(SyncIntervalKey, 30*time.Second)
	vip.SetDefault(SyncRateLimitKey, 10)
	vip.SetDefault(PendingSweepThresholdKey, time.Hour)
	vip.SetDefault(SessionRotationTimeoutKey, 2*time.Second)
	vip.SetDefault(FeePerKBKey, 50)

	if err := validate(); err != nil {
		log.WithError(err).Panic("error while validating config")
	}

	if err := initDatadir(); err != nil {
		log.WithError(err).Panic("error while creating datadir")
	}
}

//GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

//GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

//GetFloat ...
func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

//GetDuration ...
func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

//GetNetwork ...
func GetNetwork() *chaincfg.Params {
	switch vip.GetString(NetworkKey) {
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "testnet":
		return &chaincfg.TestNet3Params
	default:
		return &chaincfg.MainNetParams
	}
}

//GetDatadir ...
func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetSeed returns the decoded wallet seed, or nil when none is configured.
func GetSeed() []byte {
	seedHex := GetString(SeedHexKey)
	if len(seedHex) == 0 {
		return nil
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		log.WithError(err).Warn("ignoring malformed seed")
		return nil
	}
	return seed
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	networkName := GetString(NetworkKey)
	if networkName != "mainnet" && networkName != "testnet" &&
		networkName != "regtest" {
		return fmt.Errorf(
			"network must be one of 'mainnet', 'testnet' or 'regtest'",
		)
	}

	if GetFloat(SyncRateLimitKey) <= 0 {
		return fmt.Errorf("sync rate limit must be positive")
	}
	if GetFloat(FeePerKBKey) <= 0 {
		return fmt.Errorf("fee rate must be positive")
	}
	if GetDuration(SyncIntervalKey) <= 0 {
		return fmt.Errorf("sync interval must be positive")
	}
	if GetDuration(PendingSweepThresholdKey) <= 0 {
		return fmt.Errorf("pending sweep threshold must be positive")
	}
	return nil
}

func initDatadir() error {
	return os.MkdirAll(GetDatadir(), os.ModeDir|0755)
}
