// Package snapshot builds liquidity compositions and pending fee reports for a
// pool at a historical block from subgraph and on-chain state.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/indexer"
	"github.com/defistate/lpsnapshot-go/sources/chain"
	"github.com/defistate/lpsnapshot-go/sources/subgraph"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	kindComposition = "composition"
	kindPendingFees = "pending_fees"
	kindDiff        = "diff"
)

var (
	ErrFeesUnavailable = errors.New("no fee source configured")
	ErrInvalidBlocks   = errors.New("fromBlock must not be after toBlock")
)

// PoolSource provides pool and position records, normally a *subgraph.Client.
type PoolSource interface {
	Pool(ctx context.Context, pool common.Address, block uint64) (subgraph.PoolInfo, error)
	Positions(ctx context.Context, pool common.Address, block uint64) ([]uniswapv3.PositionRecord, error)
	PoolPositions(ctx context.Context, pool common.Address, block uint64, excludeOwner common.Address) ([]uniswapv3.PositionRecord, error)
}

// FeeSource provides fee accounting state, normally a *chain.Reader.
type FeeSource interface {
	FeeState(ctx context.Context, pool common.Address, block uint64, positions []uniswapv3.PositionRecord) (chain.FeeState, error)
}

// Config holds the dependencies and tuning of a Service.
type Config struct {
	Pools PoolSource
	// Fees is optional; without it PendingFees returns ErrFeesUnavailable.
	Fees FeeSource
	// PositionManager owns the NFT positions and is excluded from raw pool positions.
	PositionManager common.Address

	MaxRetries   int
	RetryBackoff time.Duration
	BatchSize    int
	Workers      int

	Registry prometheus.Registerer
	Logger   *zap.Logger
}

func (c *Config) validate() error {
	if c.Pools == nil {
		return errors.New("config: Pools cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.BatchSize < 0 || c.Workers < 0 {
		return errors.New("config: BatchSize and Workers cannot be negative")
	}
	return nil
}

// Service builds snapshots on demand. It is safe for concurrent use.
type Service struct {
	pools           PoolSource
	fees            FeeSource
	positionManager common.Address
	maxRetries      int
	retryBackoff    time.Duration
	batchSize       int
	workers         int

	indexer *indexer.Indexer
	metrics *Metrics
	logger  *zap.Logger
}

// New validates cfg and creates a Service.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 500
	}

	return &Service{
		pools:           cfg.Pools,
		fees:            cfg.Fees,
		positionManager: cfg.PositionManager,
		maxRetries:      cfg.MaxRetries,
		retryBackoff:    cfg.RetryBackoff,
		batchSize:       batchSize,
		workers:         cfg.Workers,
		indexer:         indexer.New(),
		metrics:         NewMetrics(cfg.Registry),
		logger:          logger,
	}, nil
}

// fetch runs fn with retries. A missing pool is never retried.
func (s *Service) fetch(ctx context.Context, source string, fn func(context.Context) error) error {
	return withRetry(ctx, s.maxRetries, s.retryBackoff, func(ctx context.Context) error {
		s.metrics.attempts.WithLabelValues(source).Inc()
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, subgraph.ErrPoolNotFound) || errors.Is(err, subgraph.ErrInvalidRecord) {
			return permanent{err}
		}
		s.logger.Warn("upstream fetch failed", zap.String("source", source), zap.Error(err))
		return err
	})
}

func (s *Service) poolSnapshot(ctx context.Context, pool common.Address, block uint64) (uniswapv3.PoolSnapshot, error) {
	var info subgraph.PoolInfo
	err := s.fetch(ctx, "subgraph", func(ctx context.Context) (err error) {
		info, err = s.pools.Pool(ctx, pool, block)
		return err
	})
	if err != nil {
		return uniswapv3.PoolSnapshot{}, err
	}
	return uniswapv3.PoolSnapshot{
		Pool:           pool,
		Block:          block,
		Tick:           info.Tick,
		Token0Decimals: info.Token0Decimals,
		Token1Decimals: info.Token1Decimals,
	}, nil
}

func (s *Service) positions(ctx context.Context, pool common.Address, block uint64) ([]uniswapv3.PositionRecord, error) {
	var positions []uniswapv3.PositionRecord
	err := s.fetch(ctx, "subgraph", func(ctx context.Context) (err error) {
		positions, err = s.pools.Positions(ctx, pool, block)
		return err
	})
	return positions, err
}

func (s *Service) observe(kind string, start time.Time, err error) {
	s.metrics.buildDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.builds.WithLabelValues(kind, outcome).Inc()
}

// Composition maps every liquidity provider of pool to the token amounts their
// positions represent at block.
func (s *Service) Composition(ctx context.Context, pool common.Address, block uint64, activeOnly bool) (composition uniswapv3.Composition, err error) {
	start := time.Now()
	defer func() { s.observe(kindComposition, start, err) }()

	snapshot, err := s.poolSnapshot(ctx, pool, block)
	if err != nil {
		return uniswapv3.Composition{}, err
	}
	positions, err := s.positions(ctx, pool, block)
	if err != nil {
		return uniswapv3.Composition{}, err
	}

	composition, err = calculator.ComposeParallel(ctx, snapshot, positions, activeOnly, s.batchSize, s.workers)
	if err != nil {
		return uniswapv3.Composition{}, fmt.Errorf("compose: %w", err)
	}

	s.metrics.positions.WithLabelValues(kindComposition).Add(float64(len(positions)))
	s.metrics.failures.WithLabelValues(kindComposition).Add(float64(len(composition.Failures)))
	s.logger.Info("composition built",
		zap.String("pool", pool.Hex()),
		zap.Uint64("block", block),
		zap.Int64("tick", snapshot.Tick),
		zap.Bool("activeOnly", activeOnly),
		zap.Int("positions", len(positions)),
		zap.Int("providers", len(composition.Providers)),
		zap.Int("failures", len(composition.Failures)),
		zap.Duration("took", time.Since(start)),
	)
	return composition, nil
}

// PendingFees computes the fees every raw pool position could collect at block.
// Positions held by the position manager are excluded.
func (s *Service) PendingFees(ctx context.Context, pool common.Address, block uint64) (result uniswapv3.PendingFees, err error) {
	start := time.Now()
	defer func() { s.observe(kindPendingFees, start, err) }()

	if s.fees == nil {
		return uniswapv3.PendingFees{}, ErrFeesUnavailable
	}

	snapshot, err := s.poolSnapshot(ctx, pool, block)
	if err != nil {
		return uniswapv3.PendingFees{}, err
	}

	var positions []uniswapv3.PositionRecord
	err = s.fetch(ctx, "subgraph", func(ctx context.Context) (err error) {
		positions, err = s.pools.PoolPositions(ctx, pool, block, s.positionManager)
		return err
	})
	if err != nil {
		return uniswapv3.PendingFees{}, err
	}

	var state chain.FeeState
	err = s.fetch(ctx, "rpc", func(ctx context.Context) (err error) {
		state, err = s.fees.FeeState(ctx, pool, block, positions)
		return err
	})
	if err != nil {
		return uniswapv3.PendingFees{}, err
	}
	if len(state.Positions) != len(positions) {
		return uniswapv3.PendingFees{}, fmt.Errorf("fee state has %d positions, expected %d", len(state.Positions), len(positions))
	}

	snapshot.FeeGrowthGlobal0 = state.FeeGrowthGlobal0
	snapshot.FeeGrowthGlobal1 = state.FeeGrowthGlobal1
	indexed := s.indexer.Index(snapshot, state.Ticks, positions)

	records := make([]uniswapv3.PositionFeeRecord, len(positions))
	for i, p := range positions {
		records[i] = uniswapv3.PositionFeeRecord{
			PositionRecord: p,
			Fees:           state.Positions[i],
			Lower:          checkpoint(indexed, p.TickLower),
			Upper:          checkpoint(indexed, p.TickUpper),
		}
	}
	result = calculator.PendingFees(indexed.Pool(), records)

	s.metrics.positions.WithLabelValues(kindPendingFees).Add(float64(len(positions)))
	s.metrics.failures.WithLabelValues(kindPendingFees).Add(float64(len(result.Failures)))
	s.logger.Info("pending fees built",
		zap.String("pool", pool.Hex()),
		zap.Uint64("block", block),
		zap.Int64("tick", snapshot.Tick),
		zap.Int("positions", len(positions)),
		zap.Int("owners", len(indexed.Owners())),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// checkpoint returns the indexed checkpoint of tick. A tick the fee source did
// not report yields a checkpoint without fee growth, which fails that position only.
func checkpoint(indexed indexer.IndexedSnapshot, tick int64) uniswapv3.TickCheckpoint {
	if c, ok := indexed.TickByIndex(tick); ok {
		return c
	}
	return uniswapv3.TickCheckpoint{Index: tick}
}

// PositionDiff reports how the positions of pool changed between two blocks.
func (s *Service) PositionDiff(ctx context.Context, pool common.Address, fromBlock, toBlock uint64) (diff uniswapv3.PositionSetDiff, err error) {
	start := time.Now()
	defer func() { s.observe(kindDiff, start, err) }()

	if fromBlock > toBlock {
		return uniswapv3.PositionSetDiff{}, fmt.Errorf("%w: %d > %d", ErrInvalidBlocks, fromBlock, toBlock)
	}
	before, err := s.positions(ctx, pool, fromBlock)
	if err != nil {
		return uniswapv3.PositionSetDiff{}, err
	}
	after, err := s.positions(ctx, pool, toBlock)
	if err != nil {
		return uniswapv3.PositionSetDiff{}, err
	}

	diff = uniswapv3.Differ(before, after)
	s.logger.Info("position diff built",
		zap.String("pool", pool.Hex()),
		zap.Uint64("fromBlock", fromBlock),
		zap.Uint64("toBlock", toBlock),
		zap.Int("additions", len(diff.Additions)),
		zap.Int("updates", len(diff.Updates)),
		zap.Int("deletions", len(diff.Deletions)),
	)
	return diff, nil
}
