// Package subgraph queries pool and position state from an AMM subgraph at a
// historical block.
package subgraph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/machinebox/graphql"
	"go.uber.org/zap"
)

const DefaultPageSize = 1000

var (
	ErrPoolNotFound  = errors.New("pool not found in subgraph")
	ErrInvalidRecord = errors.New("invalid subgraph record")
)

// Config holds the configuration for the client.
type Config struct {
	URL        string
	AuthToken  string
	PageSize   int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.PageSize < 0 {
		return errors.New("config: PageSize cannot be negative")
	}
	return nil
}

// Client runs the pool and position queries.
type Client struct {
	gql       *graphql.Client
	authToken string
	pageSize  int
	logger    *zap.Logger
}

// New creates a subgraph client.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var opts []graphql.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, graphql.WithHTTPClient(cfg.HTTPClient))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	gql := graphql.NewClient(cfg.URL, opts...)
	gql.Log = func(s string) { logger.Debug(s) }

	return &Client{
		gql:       gql,
		authToken: cfg.AuthToken,
		pageSize:  pageSize,
		logger:    logger,
	}, nil
}

// PoolInfo is the subgraph's view of a pool at a block.
type PoolInfo struct {
	Tick           int64
	Liquidity      *uint256.Int
	Token0         common.Address
	Token1         common.Address
	Token0Decimals uint8
	Token1Decimals uint8
}

type tokenResponse struct {
	ID       string `json:"id"`
	Decimals string `json:"decimals"`
}

type poolResponse struct {
	Pool *struct {
		Tick      *string       `json:"tick"`
		Liquidity string        `json:"liquidity"`
		Token0    tokenResponse `json:"token0"`
		Token1    tokenResponse `json:"token1"`
	} `json:"pool"`
}

type positionResponse struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Liquidity string `json:"liquidity"`
	TickLower struct {
		TickIdx string `json:"tickIdx"`
	} `json:"tickLower"`
	TickUpper struct {
		TickIdx string `json:"tickIdx"`
	} `json:"tickUpper"`
}

func (c *Client) newRequest(query string, pool common.Address, block uint64) *graphql.Request {
	req := graphql.NewRequest(query)
	req.Var("pool", strings.ToLower(pool.Hex()))
	req.Var("block", block)
	if c.authToken != "" {
		req.Header.Set("Authorization", c.authToken)
	}
	return req
}

// Pool returns the current tick and token metadata of pool at block.
func (c *Client) Pool(ctx context.Context, pool common.Address, block uint64) (PoolInfo, error) {
	var resp poolResponse
	if err := c.gql.Run(ctx, c.newRequest(poolQuery, pool, block), &resp); err != nil {
		return PoolInfo{}, fmt.Errorf("query pool: %w", err)
	}
	if resp.Pool == nil || resp.Pool.Tick == nil {
		return PoolInfo{}, fmt.Errorf("%w: %s at block %d", ErrPoolNotFound, pool.Hex(), block)
	}

	tick, err := strconv.ParseInt(*resp.Pool.Tick, 10, 64)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("%w: tick %q", ErrInvalidRecord, *resp.Pool.Tick)
	}
	liquidity := new(uint256.Int)
	if resp.Pool.Liquidity != "" {
		if liquidity, err = uint256.FromDecimal(resp.Pool.Liquidity); err != nil {
			return PoolInfo{}, fmt.Errorf("%w: liquidity %q", ErrInvalidRecord, resp.Pool.Liquidity)
		}
	}
	decimals0, err := strconv.ParseUint(resp.Pool.Token0.Decimals, 10, 8)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("%w: token0 decimals %q", ErrInvalidRecord, resp.Pool.Token0.Decimals)
	}
	decimals1, err := strconv.ParseUint(resp.Pool.Token1.Decimals, 10, 8)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("%w: token1 decimals %q", ErrInvalidRecord, resp.Pool.Token1.Decimals)
	}

	return PoolInfo{
		Tick:           tick,
		Liquidity:      liquidity,
		Token0:         common.HexToAddress(resp.Pool.Token0.ID),
		Token1:         common.HexToAddress(resp.Pool.Token1.ID),
		Token0Decimals: uint8(decimals0),
		Token1Decimals: uint8(decimals1),
	}, nil
}

// Positions returns every position of pool with liquidity at block.
func (c *Client) Positions(ctx context.Context, pool common.Address, block uint64) ([]uniswapv3.PositionRecord, error) {
	return c.paginate(ctx, "positions", func(lastID string) *graphql.Request {
		req := c.newRequest(positionsQuery, pool, block)
		req.Var("lastID", lastID)
		req.Var("first", c.pageSize)
		return req
	})
}

// PoolPositions returns the raw pool positions of pool with liquidity at block,
// skipping those held by excludeOwner, typically the position manager contract.
func (c *Client) PoolPositions(ctx context.Context, pool common.Address, block uint64, excludeOwner common.Address) ([]uniswapv3.PositionRecord, error) {
	return c.paginate(ctx, "poolPositions", func(lastID string) *graphql.Request {
		req := c.newRequest(poolPositionsQuery, pool, block)
		req.Var("lastID", lastID)
		req.Var("first", c.pageSize)
		req.Var("excludeOwner", strings.ToLower(excludeOwner.Hex()))
		return req
	})
}

// paginate walks an id-ordered collection with an id_gt cursor until a short page.
func (c *Client) paginate(ctx context.Context, field string, request func(lastID string) *graphql.Request) ([]uniswapv3.PositionRecord, error) {
	var (
		out    []uniswapv3.PositionRecord
		lastID string
	)
	for page := 0; ; page++ {
		var resp map[string][]positionResponse
		if err := c.gql.Run(ctx, request(lastID), &resp); err != nil {
			return nil, fmt.Errorf("query %s page %d: %w", field, page, err)
		}

		rows := resp[field]
		for _, row := range rows {
			record, err := row.record()
			if err != nil {
				return nil, err
			}
			out = append(out, record)
		}

		c.logger.Debug("subgraph page fetched",
			zap.String("collection", field),
			zap.Int("page", page),
			zap.Int("rows", len(rows)),
		)
		if len(rows) < c.pageSize {
			return out, nil
		}
		lastID = rows[len(rows)-1].ID
	}
}

func (p positionResponse) record() (uniswapv3.PositionRecord, error) {
	if !common.IsHexAddress(p.Owner) {
		return uniswapv3.PositionRecord{}, fmt.Errorf("%w: position %s owner %q", ErrInvalidRecord, p.ID, p.Owner)
	}
	lower, err := strconv.ParseInt(p.TickLower.TickIdx, 10, 64)
	if err != nil {
		return uniswapv3.PositionRecord{}, fmt.Errorf("%w: position %s tickLower %q", ErrInvalidRecord, p.ID, p.TickLower.TickIdx)
	}
	upper, err := strconv.ParseInt(p.TickUpper.TickIdx, 10, 64)
	if err != nil {
		return uniswapv3.PositionRecord{}, fmt.Errorf("%w: position %s tickUpper %q", ErrInvalidRecord, p.ID, p.TickUpper.TickIdx)
	}
	liquidity, err := uint256.FromDecimal(p.Liquidity)
	if err != nil {
		return uniswapv3.PositionRecord{}, fmt.Errorf("%w: position %s liquidity %q", ErrInvalidRecord, p.ID, p.Liquidity)
	}

	return uniswapv3.PositionRecord{
		ID:        p.ID,
		Owner:     common.HexToAddress(p.Owner),
		TickLower: lower,
		TickUpper: upper,
		Liquidity: liquidity,
	}, nil
}
