package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func closedTrade(ts int64, committed, net float64) Trade {
	c, n := dec(committed), dec(net)
	return Trade{
		ExitTime:         ts,
		CapitalCommitted: c,
		NetProceeds:      n,
		ReturnPct:        n.Sub(c).Div(c).Mul(decimal.NewFromInt(100)),
	}
}

func TestAggregateEmptyTradeLog(t *testing.T) {
	r := Aggregate(dec(10_000), dec(10_000), nil, nil)
	if r.TotalTrades != 0 || r.WinRate != 0 || r.SharpeRatio != 0 || r.ProfitFactor != 0 {
		t.Fatalf("zero-trade report must use fallbacks: %+v", r)
	}
	if r.TotalReturnPct != 0 {
		t.Fatalf("no trades, no return: %v", r.TotalReturnPct)
	}
}

func TestAggregateTotalReturnFromCapitalNotTradeSum(t *testing.T) {
	trades := []Trade{
		closedTrade(1, 10_000, 11_000),
		closedTrade(2, 11_000, 9_900),
	}
	r := Aggregate(dec(10_000), dec(8_900), trades, nil)
	// -11% on final vs initial capital; the naive sum of per-trade
	// returns (+10%, -10%) would claim 0%.
	if math.Abs(r.TotalReturnPct-(-11.0)) > 1e-9 {
		t.Fatalf("total return %v, want -11", r.TotalReturnPct)
	}
}

func TestAggregateWinRateAndProfitFactor(t *testing.T) {
	trades := []Trade{
		closedTrade(1, 100, 110), // +10
		closedTrade(2, 100, 104), // +4
		closedTrade(3, 100, 93),  // -7
	}
	r := Aggregate(dec(300), dec(307), trades, nil)
	if math.Abs(r.WinRate-2.0/3.0) > 1e-12 {
		t.Fatalf("win rate %v", r.WinRate)
	}
	if math.Abs(r.ProfitFactor-2.0) > 1e-9 {
		t.Fatalf("profit factor %v, want 14/7", r.ProfitFactor)
	}
}

func TestAggregateProfitFactorWithoutLosses(t *testing.T) {
	trades := []Trade{closedTrade(1, 100, 105)}
	r := Aggregate(dec(100), dec(105), trades, nil)
	if r.ProfitFactor != maxProfitFactor {
		t.Fatalf("want capped profit factor, got %v", r.ProfitFactor)
	}
	if math.IsInf(r.ProfitFactor, 0) || math.IsNaN(r.ProfitFactor) {
		t.Fatal("profit factor must stay finite")
	}
}

func TestAggregateSharpeFallbacks(t *testing.T) {
	one := []Trade{closedTrade(1, 100, 105)}
	if r := Aggregate(dec(100), dec(105), one, nil); r.SharpeRatio != 0 {
		t.Fatalf("single trade must yield sharpe 0, got %v", r.SharpeRatio)
	}

	same := []Trade{
		closedTrade(1, 100, 105),
		closedTrade(2, 100, 105),
	}
	if r := Aggregate(dec(200), dec(210), same, nil); r.SharpeRatio != 0 {
		t.Fatalf("zero stdev must yield sharpe 0, got %v", r.SharpeRatio)
	}
}

func TestAggregateSharpe(t *testing.T) {
	trades := []Trade{
		closedTrade(1, 100, 102), // +2%
		closedTrade(2, 100, 104), // +4%
		closedTrade(3, 100, 106), // +6%
	}
	r := Aggregate(dec(300), dec(312), trades, nil)
	// mean 4, sample stdev 2
	if math.Abs(r.SharpeRatio-2.0) > 1e-9 {
		t.Fatalf("sharpe %v, want 2", r.SharpeRatio)
	}
}

func TestAggregateMaxDrawdownFromEquityCurve(t *testing.T) {
	equity := []EquityPoint{
		{Timestamp: 1, Equity: dec(1_200)},
		{Timestamp: 2, Equity: dec(900)},
		{Timestamp: 3, Equity: dec(1_000)},
	}
	trades := []Trade{closedTrade(1, 1, 2), closedTrade(2, 1, 2), closedTrade(3, 1, 2)}
	r := Aggregate(dec(1_000), dec(1_000), trades, equity)
	if math.Abs(r.MaxDrawdownPct-25.0) > 1e-9 {
		t.Fatalf("max drawdown %v, want 25", r.MaxDrawdownPct)
	}
}

func TestReportFieldNamesAreStable(t *testing.T) {
	raw, err := json.Marshal(&Report{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, name := range []string{
		"initial_capital", "final_capital", "total_return_pct", "total_trades",
		"win_rate", "avg_return_pct", "sharpe_ratio", "max_drawdown_pct",
		"profit_factor", "trades",
	} {
		if _, ok := fields[name]; !ok {
			t.Fatalf("report field %q missing from JSON output", name)
		}
	}
}
