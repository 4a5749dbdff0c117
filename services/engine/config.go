package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostConfig models order frictions. Fee and slippage are fixed rates applied
// to the traded notional on both entry and exit.
type CostConfig struct {
	FeeRate       decimal.Decimal `json:"fee_rate"`
	SlippageRate  decimal.Decimal `json:"slippage_rate"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
}

// frictionRate is the combined per-side cost rate.
func (c CostConfig) frictionRate() decimal.Decimal {
	return c.FeeRate.Add(c.SlippageRate)
}

// DefaultCostConfig matches Binance spot taker fees with a small slippage
// allowance.
func DefaultCostConfig() CostConfig {
	return CostConfig{
		FeeRate:       decimal.NewFromFloat(0.001),
		SlippageRate:  decimal.NewFromFloat(0.0002),
		MinOrderValue: decimal.NewFromFloat(10.0),
	}
}

// TrailingConfig configures the trailing-stop trigger. The stop arms once
// profit reaches ActivationPct of entry; it fires when price falls TrailPct
// of entry below the peak.
type TrailingConfig struct {
	Enabled       bool    `json:"enabled"`
	ActivationPct float64 `json:"activation_pct"`
	TrailPct      float64 `json:"trail_pct"`
}

// ExitConfig holds the multi-trigger exit policy knobs. A threshold of zero
// disables that trigger.
type ExitConfig struct {
	TakeProfit float64        `json:"take_profit"`
	StopLoss   float64        `json:"stop_loss"`
	Trailing   TrailingConfig `json:"trailing_stop"`
	MaxHold    time.Duration  `json:"max_hold_duration"`
}

func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		TakeProfit: 0.05,
		StopLoss:   0.02,
		Trailing: TrailingConfig{
			Enabled:       true,
			ActivationPct: 0.03,
			TrailPct:      0.015,
		},
		MaxHold: 72 * time.Hour,
	}
}

// SizingConfig bounds the Kelly position sizer.
type SizingConfig struct {
	MinFraction     float64 `json:"min_fraction"`
	MaxFraction     float64 `json:"max_fraction"`
	DefaultFraction float64 `json:"default_fraction"`
	HalfKelly       bool    `json:"half_kelly"`
	Damping         float64 `json:"damping"`
	LookbackTrades  int     `json:"lookback_trades"`
	MinTrades       int     `json:"min_trades"`
}

func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		MinFraction:     0.05,
		MaxFraction:     0.5,
		DefaultFraction: 0.1,
		HalfKelly:       true,
		Damping:         0.5,
		LookbackTrades:  50,
		MinTrades:       10,
	}
}

// RunConfig is everything one isolated backtest run needs besides data.
type RunConfig struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Cost           CostConfig      `json:"cost"`
	Exit           ExitConfig      `json:"exit"`
	Sizing         SizingConfig    `json:"sizing"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		InitialCapital: decimal.NewFromInt(10_000),
		Cost:           DefaultCostConfig(),
		Exit:           DefaultExitConfig(),
		Sizing:         DefaultSizingConfig(),
	}
}
