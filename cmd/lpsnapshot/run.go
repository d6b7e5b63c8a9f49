package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/lpsnapshot-go/api"
	"github.com/defistate/lpsnapshot-go/config"
	"github.com/defistate/lpsnapshot-go/snapshot"
	"github.com/defistate/lpsnapshot-go/sources/chain"
	"github.com/defistate/lpsnapshot-go/sources/subgraph"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type feeMode int

const (
	noFees feeMode = iota
	requireFees
	// optionalFees enables fee reads when an RPC endpoint is configured.
	optionalFees
)

// env bundles what every subcommand sets up before doing its work.
type env struct {
	fees     bool
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	service  *snapshot.Service
	closers  []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	_ = e.logger.Sync()
}

func setup(ctx context.Context, cmd *cobra.Command, mode feeMode) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	needFees := mode == requireFees || (mode == optionalFees && cfg.RPCURL != "")
	if err := cfg.Validate(needFees); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	e := &env{fees: needFees, cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	pools, err := subgraph.New(subgraph.Config{
		URL:       cfg.SubgraphURL,
		AuthToken: cfg.SubgraphAuth,
		PageSize:  cfg.PageSize,
		Logger:    logger.Named("subgraph"),
	})
	if err != nil {
		e.close()
		return nil, err
	}

	svcCfg := snapshot.Config{
		Pools:        pools,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		BatchSize:    cfg.ComposeBatch,
		Workers:      cfg.Workers,
		Registry:     e.registry,
		Logger:       logger.Named("snapshot"),
	}
	if needFees {
		reader, err := chain.Dial(ctx, cfg.RPCURL, logger.Named("chain"), cfg.CallBatchSize)
		if err != nil {
			e.close()
			return nil, err
		}
		e.closers = append(e.closers, reader.Close)
		svcCfg.Fees = reader
		svcCfg.PositionManager = cfg.PositionManagerAddress()
	}

	if e.service, err = snapshot.New(svcCfg); err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func poolFlag(cmd *cobra.Command) (common.Address, error) {
	raw, _ := cmd.Flags().GetString("pool")
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("--pool %q is not an address", raw)
	}
	return common.HexToAddress(raw), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runComposition(cmd *cobra.Command, _ []string) error {
	pool, err := poolFlag(cmd)
	if err != nil {
		return err
	}
	block, _ := cmd.Flags().GetUint64("block")
	activeOnly, _ := cmd.Flags().GetBool("active-only")

	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, noFees)
	if err != nil {
		return err
	}
	defer e.close()

	composition, err := e.service.Composition(ctx, pool, block, activeOnly)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), e.cfg.Out, composition)
}

func runPendingFees(cmd *cobra.Command, _ []string) error {
	pool, err := poolFlag(cmd)
	if err != nil {
		return err
	}
	block, _ := cmd.Flags().GetUint64("block")

	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, requireFees)
	if err != nil {
		return err
	}
	defer e.close()

	fees, err := e.service.PendingFees(ctx, pool, block)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), e.cfg.Out, fees)
}

func runDiff(cmd *cobra.Command, _ []string) error {
	pool, err := poolFlag(cmd)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")

	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, noFees)
	if err != nil {
		return err
	}
	defer e.close()

	diff, err := e.service.PositionDiff(ctx, pool, from, to)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), e.cfg.Out, diff)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	e, err := setup(ctx, cmd, optionalFees)
	if err != nil {
		return err
	}
	defer e.close()

	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	server, err := api.NewServer(api.Config{
		Snapshots:      e.service,
		Registry:       e.registry,
		Gatherer:       e.registry,
		RequestTimeout: e.cfg.RequestTimeout,
		Logger:         e.logger.Named("api"),
	})
	if err != nil {
		return err
	}

	e.logger.Info("serving",
		zap.String("listen", e.cfg.Listen),
		zap.Bool("pendingFees", e.fees),
	)
	return server.ListenAndServe(ctx, e.cfg.Listen)
}
