// Package proto holds the wire types for the backtest service API. The shapes
// mirror the proto definitions; decimal amounts travel as strings.
package proto

import "context"

type BacktestRequest struct {
	Symbol         string        `json:"symbol"`
	Timeframe      string        `json:"timeframe"`
	StartTime      int64         `json:"start_time"`
	EndTime        int64         `json:"end_time"`
	InitialCapital string        `json:"initial_capital"`
	FeeRate        string        `json:"fee_rate"`
	SlippageRate   string        `json:"slippage_rate"`
	MinOrderValue  string        `json:"min_order_value"`
	TakeProfitPct  float64       `json:"take_profit_pct"`
	StopLossPct    float64       `json:"stop_loss_pct"`
	TrailingStop   *TrailingStop `json:"trailing_stop,omitempty"`
	MaxHoldMs      int64         `json:"max_hold_ms"`
	Signals        []*Signal     `json:"signals"`
}

type TrailingStop struct {
	ActivationPct float64 `json:"activation_pct"`
	TrailPct      float64 `json:"trail_pct"`
}

type Signal struct {
	Timestamp int64             `json:"timestamp"`
	Price     string            `json:"price"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type ExecutedTrade struct {
	EntryTime   int64  `json:"entry_time"`
	ExitTime    int64  `json:"exit_time"`
	EntryPrice  string `json:"entry_price"`
	ExitPrice   string `json:"exit_price"`
	Quantity    string `json:"quantity"`
	NetProceeds string `json:"net_proceeds"`
	Fees        string `json:"fees"`
	ReturnPct   string `json:"return_pct"`
	ExitReason  string `json:"exit_reason"`
	HoldingMs   int64  `json:"holding_duration"`
}

type EquityPoint struct {
	Timestamp int64  `json:"timestamp"`
	Equity    string `json:"equity"`
	Drawdown  string `json:"drawdown"`
}

type BacktestResponse struct {
	JobId          string           `json:"job_id"`
	ExecutionTime  int64            `json:"execution_time"`
	InitialCapital float64          `json:"initial_capital"`
	FinalCapital   float64          `json:"final_capital"`
	TotalReturnPct float64          `json:"total_return_pct"`
	TotalTrades    int32            `json:"total_trades"`
	WinRate        float64          `json:"win_rate"`
	AvgReturnPct   float64          `json:"avg_return_pct"`
	SharpeRatio    float64          `json:"sharpe_ratio"`
	MaxDrawdownPct float64          `json:"max_drawdown_pct"`
	ProfitFactor   float64          `json:"profit_factor"`
	SkippedBusy    int32            `json:"signals_skipped_busy"`
	SkippedCapital int32            `json:"signals_skipped_capital"`
	Trades         []*ExecutedTrade `json:"trades"`
	EquityCurve    []*EquityPoint   `json:"equity_curve"`
}

// gRPC server interface stub

type UnimplementedBacktestServiceServer struct{}

func RegisterBacktestServiceServer(_ any, _ BacktestServiceServer) {}

type BacktestServiceServer interface {
	ExecuteBacktest(context.Context, *BacktestRequest) (*BacktestResponse, error)
}
