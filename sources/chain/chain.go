// Package chain reads fee accounting state from a pool contract at a
// historical block through batched eth_call requests.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const DefaultBatchSize = 100

var ErrUnexpectedResult = errors.New("unexpected call result")

// BatchCaller is the part of *rpc.Client the reader needs.
type BatchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// Config holds the configuration for the reader.
type Config struct {
	Caller    BatchCaller
	Logger    *zap.Logger
	BatchSize int
}

func (c *Config) validate() error {
	if c.Caller == nil {
		return errors.New("config: Caller is required")
	}
	if c.BatchSize < 0 {
		return errors.New("config: BatchSize cannot be negative")
	}
	return nil
}

// Reader performs the pool calls needed to value pending fees.
type Reader struct {
	caller    BatchCaller
	logger    *zap.Logger
	batchSize int
	abi       abi.ABI
	closer    func()
}

// New creates a Reader on top of an existing caller.
func New(cfg Config) (*Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}

	return &Reader{
		caller:    cfg.Caller,
		logger:    logger,
		batchSize: batchSize,
		abi:       parsed,
	}, nil
}

// Dial connects to the JSON-RPC endpoint at url and wraps it in a Reader.
func Dial(ctx context.Context, url string, logger *zap.Logger, batchSize int) (*Reader, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	r, err := New(Config{Caller: client, Logger: logger, BatchSize: batchSize})
	if err != nil {
		client.Close()
		return nil, err
	}
	r.closer = client.Close
	return r, nil
}

// Close releases the underlying connection when the Reader owns it.
func (r *Reader) Close() {
	if r.closer != nil {
		r.closer()
	}
}

// FeeState is the fee accounting state of a pool and a set of its positions.
// Positions is aligned with the input of Reader.FeeState; Ticks holds every
// distinct bounding tick, sorted by index.
type FeeState struct {
	FeeGrowthGlobal0 *uint256.Int
	FeeGrowthGlobal1 *uint256.Int
	Positions        []uniswapv3.PositionFeeSnapshot
	Ticks            []uniswapv3.TickCheckpoint
}

type callMsg struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

type call struct {
	method string
	data   []byte
	result hexutil.Bytes
}

// FeeState reads the global fee growth, each position's fee checkpoint and the
// checkpoints of all bounding ticks of positions at block.
func (r *Reader) FeeState(ctx context.Context, pool common.Address, block uint64, positions []uniswapv3.PositionRecord) (FeeState, error) {
	tickSet := make(map[int64]struct{}, 2*len(positions))
	for _, p := range positions {
		tickSet[p.TickLower] = struct{}{}
		tickSet[p.TickUpper] = struct{}{}
	}
	ticks := make([]int64, 0, len(tickSet))
	for tick := range tickSet {
		ticks = append(ticks, tick)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	calls := make([]*call, 0, 2+len(positions)+len(ticks))
	add := func(method string, args ...any) error {
		data, err := r.abi.Pack(method, args...)
		if err != nil {
			return fmt.Errorf("pack %s: %w", method, err)
		}
		calls = append(calls, &call{method: method, data: data})
		return nil
	}

	if err := add(methodTotalFeeGrowth0); err != nil {
		return FeeState{}, err
	}
	if err := add(methodTotalFeeGrowth1); err != nil {
		return FeeState{}, err
	}
	for _, p := range positions {
		if err := add(methodPositions, PositionKey(p.Owner, p.TickLower, p.TickUpper)); err != nil {
			return FeeState{}, err
		}
	}
	for _, tick := range ticks {
		if err := add(methodTicks, big.NewInt(tick)); err != nil {
			return FeeState{}, err
		}
	}

	if err := r.execute(ctx, pool, block, calls); err != nil {
		return FeeState{}, err
	}

	state := FeeState{
		Positions: make([]uniswapv3.PositionFeeSnapshot, len(positions)),
		Ticks:     make([]uniswapv3.TickCheckpoint, len(ticks)),
	}
	var err error
	if state.FeeGrowthGlobal0, err = r.decodeUint(calls[0]); err != nil {
		return FeeState{}, err
	}
	if state.FeeGrowthGlobal1, err = r.decodeUint(calls[1]); err != nil {
		return FeeState{}, err
	}
	for i := range positions {
		if state.Positions[i], err = r.decodePosition(calls[2+i]); err != nil {
			return FeeState{}, fmt.Errorf("position %s: %w", positions[i].ID, err)
		}
	}
	for i, tick := range ticks {
		if state.Ticks[i], err = r.decodeTick(tick, calls[2+len(positions)+i]); err != nil {
			return FeeState{}, fmt.Errorf("tick %d: %w", tick, err)
		}
	}

	r.logger.Debug("fee state read",
		zap.String("pool", pool.Hex()),
		zap.Uint64("block", block),
		zap.Int("positions", len(positions)),
		zap.Int("ticks", len(ticks)),
		zap.Int("calls", len(calls)),
	)
	return state, nil
}

// execute sends calls as eth_call requests at block, batchSize per round trip.
func (r *Reader) execute(ctx context.Context, pool common.Address, block uint64, calls []*call) error {
	blockTag := hexutil.EncodeUint64(block)
	for start := 0; start < len(calls); start += r.batchSize {
		end := min(start+r.batchSize, len(calls))
		batch := make([]rpc.BatchElem, 0, end-start)
		for _, c := range calls[start:end] {
			batch = append(batch, rpc.BatchElem{
				Method: "eth_call",
				Args:   []any{callMsg{To: pool, Data: c.data}, blockTag},
				Result: &c.result,
			})
		}

		if err := r.caller.BatchCallContext(ctx, batch); err != nil {
			return fmt.Errorf("batch call: %w", err)
		}
		for i, elem := range batch {
			if elem.Error != nil {
				return fmt.Errorf("call %s: %w", calls[start+i].method, elem.Error)
			}
		}
	}
	return nil
}

func (r *Reader) unpack(c *call) ([]any, error) {
	values, err := r.abi.Unpack(c.method, c.result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", c.method, err)
	}
	return values, nil
}

func (r *Reader) decodeUint(c *call) (*uint256.Int, error) {
	values, err := r.unpack(c)
	if err != nil {
		return nil, err
	}
	return asUint256(values[0])
}

func (r *Reader) decodePosition(c *call) (uniswapv3.PositionFeeSnapshot, error) {
	values, err := r.unpack(c)
	if err != nil {
		return uniswapv3.PositionFeeSnapshot{}, err
	}
	if len(values) != 6 {
		return uniswapv3.PositionFeeSnapshot{}, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedResult, c.method, len(values))
	}

	var out [5]*uint256.Int
	for i, idx := range []int{0, 2, 3, 4, 5} {
		if out[i], err = asUint256(values[idx]); err != nil {
			return uniswapv3.PositionFeeSnapshot{}, err
		}
	}
	return uniswapv3.PositionFeeSnapshot{
		Liquidity:        out[0],
		InnerFeeGrowth0:  out[1],
		InnerFeeGrowth1:  out[2],
		UncollectedFees0: out[3],
		UncollectedFees1: out[4],
	}, nil
}

func (r *Reader) decodeTick(tick int64, c *call) (uniswapv3.TickCheckpoint, error) {
	values, err := r.unpack(c)
	if err != nil {
		return uniswapv3.TickCheckpoint{}, err
	}
	if len(values) != 8 {
		return uniswapv3.TickCheckpoint{}, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedResult, c.method, len(values))
	}

	outer0, err := asUint256(values[2])
	if err != nil {
		return uniswapv3.TickCheckpoint{}, err
	}
	outer1, err := asUint256(values[3])
	if err != nil {
		return uniswapv3.TickCheckpoint{}, err
	}
	return uniswapv3.TickCheckpoint{Index: tick, OuterFeeGrowth0: outer0, OuterFeeGrowth1: outer1}, nil
}

func asUint256(value any) (*uint256.Int, error) {
	v, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported int type %T", ErrUnexpectedResult, value)
	}
	out, overflow := uint256.FromBig(v)
	if overflow || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s does not fit uint256", ErrUnexpectedResult, v)
	}
	return out, nil
}
