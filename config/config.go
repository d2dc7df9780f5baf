// Package config loads the mempool's tunable thresholds from the
// environment, the same getEnv/getEnvInt-over-godotenv shape the
// teacher's facilitator service config package uses.
package config

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
)

// StorageBackend selects which mempool.Storage/reputation.Storage
// implementation the coordinator is wired with.
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageRedis  StorageBackend = "redis"
)

// Config holds every tunable the check set, validator, and
// coordinator need (spec.md §4.3 defaults).
type Config struct {
	MaxVerificationGas          *uint256.Int
	MinPriorityFeePerGas        *uint256.Int
	MaxUOsPerSender             int
	GasIncreasePercent          int64
	MinInclusionRateDenominator uint64
	ThrottlingSlack             uint64
	BanSlack                    uint64
	MinStake                    *uint256.Int
	MinUnstakeDelaySec          *uint256.Int
	MinValidityWindowSecs       uint64
	GasCallStipend              *uint256.Int
	MaxValidationGas            *uint256.Int

	ChainID     *uint256.Int
	EntryPoints []common.Address
	ChainRPCURL string

	Port int

	Storage  StorageBackend
	RedisURL string

	// DebugEnabled gates the clear/get_all/set_reputation/
	// get_all_reputation surfaces at runtime (spec.md §9 Open
	// Questions).
	DebugEnabled bool
}

// Load reads configuration from the environment, loading a .env file
// first if one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		MaxVerificationGas:          getEnvU256("MAX_VERIFICATION_GAS", 2_000_000),
		MinPriorityFeePerGas:        getEnvU256("MIN_PRIORITY_FEE_PER_GAS", 100_000_000),
		MaxUOsPerSender:             getEnvInt("MAX_UOS_PER_SENDER", 4),
		GasIncreasePercent:          int64(getEnvInt("GAS_INCREASE_PERCENT", 10)),
		MinInclusionRateDenominator: uint64(getEnvInt("MIN_INCLUSION_RATE_DENOMINATOR", 10)),
		ThrottlingSlack:             uint64(getEnvInt("THROTTLING_SLACK", 10)),
		BanSlack:                    uint64(getEnvInt("BAN_SLACK", 50)),
		MinStake:                    getEnvU256("MIN_STAKE", 100_000_000_000_000_000),
		MinUnstakeDelaySec:          getEnvU256("MIN_UNSTAKE_DELAY_SEC", 86400),
		MinValidityWindowSecs:       uint64(getEnvInt("MIN_VALIDITY_WINDOW_SECS", 30)),
		GasCallStipend:              getEnvU256("GAS_CALL_STIPEND", 35000),
		MaxValidationGas:            getEnvU256("MAX_VALIDATION_GAS", 10_000_000),

		ChainID:     getEnvU256("CHAIN_ID", 1),
		EntryPoints: getEnvAddresses("ENTRY_POINTS"),
		ChainRPCURL: getEnv("CHAIN_RPC_URL", "http://localhost:8545"),

		Port: getEnvInt("PORT", 9090),

		Storage:  StorageBackend(getEnv("MEMPOOL_STORAGE", string(StorageMemory))),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		DebugEnabled: getEnvBool("DEBUG_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvU256(key string, defaultValue uint64) *uint256.Int {
	if value := os.Getenv(key); value != "" {
		if v, err := uint256.FromDecimal(value); err == nil {
			return v
		}
	}
	return uint256.NewInt(defaultValue)
}

func getEnvAddresses(key string) []common.Address {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []common.Address
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				out = append(out, common.HexToAddress(value[start:i]))
			}
			start = i + 1
		}
	}
	return out
}
