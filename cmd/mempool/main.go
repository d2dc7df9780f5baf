// Command mempool starts the ERC-4337 alternative mempool core:
// config loading, chain-client wiring, the admission coordinator, an
// hourly reputation-decay loop, and a Prometheus metrics endpoint —
// the same load-config/log-startup/build-service/serve shape as the
// teacher's facilitator's cmd/facilitator/main.go.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/t402-io/aa-mempool/chain"
	"github.com/t402-io/aa-mempool/config"
	"github.com/t402-io/aa-mempool/coordinator"
	"github.com/t402-io/aa-mempool/internal/log"
	"github.com/t402-io/aa-mempool/mempool"
	"github.com/t402-io/aa-mempool/metrics"
	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/storageredis"
	"github.com/t402-io/aa-mempool/validator"
)

func main() {
	cfg := config.Load()
	logger := log.New(log.LevelInfo)

	logger.Infof("starting aa-mempool core")
	logger.Infof("chain_id=%s entry_points=%d storage=%s", cfg.ChainID, len(cfg.EntryPoints), cfg.Storage)

	chainClient := chain.NewJSONRPCClient(cfg.ChainRPCURL)

	m := metrics.New()

	v := validator.New(chainClient, validator.Config{
		MaxVerificationGas:         cfg.MaxVerificationGas,
		MinPriorityFeePerGas:       cfg.MinPriorityFeePerGas,
		GasCallStipend:             cfg.GasCallStipend,
		MaxUOsPerSender:            cfg.MaxUOsPerSender,
		MinStake:                   cfg.MinStake,
		MinUnstakeDelaySec:         cfg.MinUnstakeDelaySec,
		MinValidityWindowSecs:      cfg.MinValidityWindowSecs,
		MaxValidationGas:           cfg.MaxValidationGas,
		PermittedExternalContracts: map[common.Address]struct{}{},
	})
	v.Metrics = m

	newMempool, newReputation := storageFactories(cfg, logger)

	c := coordinator.New(v, cfg.ChainID, cfg.EntryPoints, newMempool, newReputation)
	c.DebugEnabled = func() bool { return cfg.DebugEnabled }
	c.Metrics = m

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reputation.DecayLoop(ctx, time.Hour, c.ReputationStores, logger, m.RecordDecayPass)
	go reportMetrics(ctx, c, m)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("metrics listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warnf("metrics server stopped: %v", err)
	}
}

// storageFactories builds the per-mempool_id Storage constructors the
// coordinator provisions one pair of per supported EntryPoint,
// falling back to the in-memory backend if Redis is configured but
// unreachable at startup. Each factory receives the pair's own
// mempoolID so a Redis-backed store can key its data by it instead of
// colliding with every other EntryPoint's data.
func storageFactories(cfg *config.Config, logger *log.Logger) (func(mempoolID [32]byte) mempool.Storage, func(mempoolID [32]byte) reputation.Storage) {
	if cfg.Storage != config.StorageRedis {
		return func(mempoolID [32]byte) mempool.Storage {
				return mempool.NewMemory(cfg.GasIncreasePercent, cfg.MaxUOsPerSender)
			}, func(mempoolID [32]byte) reputation.Storage {
				return reputation.NewMemory(cfg.MinInclusionRateDenominator, cfg.ThrottlingSlack, cfg.BanSlack)
			}
	}

	logger.Infof("using redis storage backend at %s", cfg.RedisURL)
	return func(mempoolID [32]byte) mempool.Storage {
			mp, err := storageredis.NewMempool(cfg.RedisURL, mempoolID, cfg.GasIncreasePercent, cfg.MaxUOsPerSender)
			if err != nil {
				logger.Warnf("redis mempool unavailable, falling back to memory: %v", err)
				return mempool.NewMemory(cfg.GasIncreasePercent, cfg.MaxUOsPerSender)
			}
			return mp
		}, func(mempoolID [32]byte) reputation.Storage {
			rp, err := storageredis.NewReputation(cfg.RedisURL, mempoolID, cfg.MinInclusionRateDenominator, cfg.ThrottlingSlack, cfg.BanSlack)
			if err != nil {
				logger.Warnf("redis reputation unavailable, falling back to memory: %v", err)
				return reputation.NewMemory(cfg.MinInclusionRateDenominator, cfg.ThrottlingSlack, cfg.BanSlack)
			}
			return rp
		}
}

// reportMetrics periodically pushes the pool-size and reputation-
// status gauges for every EntryPoint, independent of the debug flag —
// metrics export is always on.
func reportMetrics(ctx context.Context, c *coordinator.Coordinator, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ep := range c.GetSupportedEntryPoints() {
				m.SetPoolSize(ep.Hex(), c.PoolSize(ep))
				for status, count := range c.ReputationStatusCounts(ep) {
					m.SetReputationStatusCount(ep.Hex(), status.String(), count)
				}
			}
		}
	}
}
