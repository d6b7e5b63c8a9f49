package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "lpsnapshot",
		Short:        "Concentrated liquidity provider snapshots at historical blocks",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("subgraph-url", "", "AMM subgraph GraphQL endpoint")
	pf.String("subgraph-auth", "", "value of the subgraph Authorization header")
	pf.Int("page-size", 1000, "subgraph rows per page")
	pf.Int("max-retries", 5, "maximum retry attempts per upstream fetch")
	pf.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	pf.Int("workers", 4, "goroutines valuing positions, 0 for unbounded")
	pf.Int("compose-batch", 500, "positions per valuation batch")

	compositionCmd := &cobra.Command{
		Use:   "composition",
		Short: "Token amounts held by every liquidity provider of a pool",
		RunE:  runComposition,
	}
	compositionCmd.Flags().String("pool", "", "pool address")
	compositionCmd.Flags().Uint64("block", 0, "block number")
	compositionCmd.Flags().Bool("active-only", false, "only count positions whose range contains the current tick")
	compositionCmd.Flags().String("out", "", "output JSON path, stdout when empty")
	root.AddCommand(compositionCmd)

	pendingFeesCmd := &cobra.Command{
		Use:   "pending-fees",
		Short: "Uncollected fees of every raw pool position",
		RunE:  runPendingFees,
	}
	addFeeFlags(pendingFeesCmd)
	pendingFeesCmd.Flags().String("pool", "", "pool address")
	pendingFeesCmd.Flags().Uint64("block", 0, "block number")
	pendingFeesCmd.Flags().String("out", "", "output JSON path, stdout when empty")
	root.AddCommand(pendingFeesCmd)

	diffCmd := &cobra.Command{
		Use:   "diff",
		Short: "Positions added, changed and removed between two blocks",
		RunE:  runDiff,
	}
	diffCmd.Flags().String("pool", "", "pool address")
	diffCmd.Flags().Uint64("from", 0, "first block")
	diffCmd.Flags().Uint64("to", 0, "second block")
	diffCmd.Flags().String("out", "", "output JSON path, stdout when empty")
	root.AddCommand(diffCmd)

	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Convert between ticks, sqrt prices and prices",
		RunE:  runTick,
	}
	tickCmd.Flags().Int64("tick", 0, "tick to describe")
	tickCmd.Flags().String("sqrt-price", "", "Q64.96 sqrt price to convert to a tick")
	tickCmd.Flags().String("price", "", "price of one base token in quote tokens to convert to a tick")
	tickCmd.Flags().Int64("spacing", 1, "tick spacing used to snap price conversions")
	tickCmd.Flags().String("base", "0x0000000000000000000000000000000000000001", "base token address")
	tickCmd.Flags().String("quote", "0x0000000000000000000000000000000000000002", "quote token address")
	tickCmd.Flags().Uint8("base-decimals", 18, "base token decimals")
	tickCmd.Flags().Uint8("quote-decimals", 18, "quote token decimals")
	root.AddCommand(tickCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve snapshots over HTTP",
		RunE:  runServe,
	}
	addFeeFlags(serveCmd)
	serveCmd.Flags().String("listen", ":3000", "listen address")
	serveCmd.Flags().Duration("request-timeout", 2*time.Minute, "per-request deadline")
	root.AddCommand(serveCmd)

	return root
}

func addFeeFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "archive JSON-RPC endpoint")
	cmd.Flags().String("position-manager", "", "position manager contract, excluded from raw pool positions")
	cmd.Flags().Int("call-batch-size", 100, "eth_call requests per JSON-RPC batch")
}
