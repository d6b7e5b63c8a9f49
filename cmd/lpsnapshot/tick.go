package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/pricemath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/defistate/lpsnapshot-go/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

type tickRequest struct {
	tick      *int64
	sqrtPrice string
	price     string
	spacing   int64
	base      pricemath.Token
	quote     pricemath.Token
}

type tickReport struct {
	pricemath.TickPrice
	UsableTick           int64  `json:"usableTick"`
	PriceDecimal         string `json:"priceDecimal"`
	PriceInvertedDecimal string `json:"priceInvertedDecimal"`
}

func runTick(cmd *cobra.Command, _ []string) error {
	req := tickRequest{}
	if cmd.Flags().Changed("tick") {
		tick, _ := cmd.Flags().GetInt64("tick")
		req.tick = &tick
	}
	req.sqrtPrice, _ = cmd.Flags().GetString("sqrt-price")
	req.price, _ = cmd.Flags().GetString("price")
	req.spacing, _ = cmd.Flags().GetInt64("spacing")

	var err error
	if req.base, err = tokenFlags(cmd, "base"); err != nil {
		return err
	}
	if req.quote, err = tokenFlags(cmd, "quote"); err != nil {
		return err
	}

	report, err := describeTick(req)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), "", report)
}

func tokenFlags(cmd *cobra.Command, name string) (pricemath.Token, error) {
	raw, _ := cmd.Flags().GetString(name)
	if !common.IsHexAddress(raw) {
		return pricemath.Token{}, fmt.Errorf("--%s %q is not an address", name, raw)
	}
	decimals, _ := cmd.Flags().GetUint8(name + "-decimals")
	return pricemath.Token{Address: common.HexToAddress(raw), Decimals: decimals}, nil
}

// describeTick resolves exactly one of tick, sqrt price or price to a tick and
// reports the prices at that tick.
func describeTick(req tickRequest) (tickReport, error) {
	set := 0
	for _, ok := range []bool{req.tick != nil, req.sqrtPrice != "", req.price != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return tickReport{}, errors.New("exactly one of --tick, --sqrt-price or --price is required")
	}

	var (
		at  pricemath.TickPrice
		err error
	)
	switch {
	case req.tick != nil:
		at, err = pricemath.AtTick(req.base, req.quote, *req.tick)

	case req.sqrtPrice != "":
		sqrtPrice, perr := uint256.FromDecimal(req.sqrtPrice)
		if perr != nil {
			return tickReport{}, fmt.Errorf("--sqrt-price %q: %w", req.sqrtPrice, perr)
		}
		tick, terr := tickmath.GetTickAtSqrtRatio(sqrtPrice)
		if terr != nil {
			return tickReport{}, terr
		}
		at, err = pricemath.AtTick(req.base, req.quote, tick)

	default:
		raw, perr := units.ParseUnits(req.price, req.quote.Decimals)
		if perr != nil {
			return tickReport{}, fmt.Errorf("--price %q: %w", req.price, perr)
		}
		at, err = pricemath.PriceToClosestTick(req.base, req.quote, raw.ToBig(), req.spacing)
	}
	if err != nil {
		return tickReport{}, err
	}

	usable, err := tickmath.NearestUsableTick(at.Tick, req.spacing)
	if err != nil {
		return tickReport{}, err
	}
	return tickReport{
		TickPrice:            at,
		UsableTick:           usable,
		PriceDecimal:         decimalString(at.Price, req.quote.Decimals),
		PriceInvertedDecimal: decimalString(at.PriceInverted, req.base.Decimals),
	}, nil
}

func decimalString(v *big.Int, decimals uint8) string {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return v.String()
	}
	return units.FormatUnits(u, decimals)
}
