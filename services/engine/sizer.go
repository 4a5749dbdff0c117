package engine

import (
	"github.com/shopspring/decimal"
)

// PositionSizer decides what fraction of available capital to commit to a new
// signal, using a damped Kelly criterion over a rolling window of closed-trade
// returns.
type PositionSizer struct {
	cfg     SizingConfig
	returns []float64 // closed-trade return percentages, oldest first
}

func NewPositionSizer(cfg SizingConfig) *PositionSizer {
	return &PositionSizer{cfg: cfg}
}

// Observe records a closed trade's return percentage, trimming the window to
// the configured lookback.
func (s *PositionSizer) Observe(returnPct float64) {
	s.returns = append(s.returns, returnPct)
	if s.cfg.LookbackTrades > 0 && len(s.returns) > s.cfg.LookbackTrades {
		s.returns = s.returns[len(s.returns)-s.cfg.LookbackTrades:]
	}
}

// Fraction returns the capital fraction for the next entry, clamped to
// [MinFraction, MaxFraction]. With fewer than MinTrades observations the
// Kelly estimate is unreliable and the fixed default fraction is used
// instead.
func (s *PositionSizer) Fraction() decimal.Decimal {
	if len(s.returns) < s.cfg.MinTrades {
		return decimal.NewFromFloat(s.cfg.DefaultFraction)
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, r := range s.returns {
		if r > 0 {
			wins++
			winSum += r
		} else {
			losses++
			lossSum += -r
		}
	}

	// No losing trades yet: reward/risk is undefined, commit the maximum.
	if losses == 0 || lossSum == 0 {
		return decimal.NewFromFloat(s.cfg.MaxFraction)
	}
	// No winning trades: Kelly is at its most negative, commit the minimum.
	if wins == 0 {
		return decimal.NewFromFloat(s.cfg.MinFraction)
	}

	winRate := float64(wins) / float64(len(s.returns))
	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(losses)
	rewardRisk := avgWin / avgLoss
	if rewardRisk <= 0 {
		return decimal.NewFromFloat(s.cfg.MaxFraction)
	}

	f := winRate - (1-winRate)/rewardRisk
	if s.cfg.HalfKelly {
		f *= s.cfg.Damping
	}

	if f < s.cfg.MinFraction {
		f = s.cfg.MinFraction
	}
	if f > s.cfg.MaxFraction {
		f = s.cfg.MaxFraction
	}
	return decimal.NewFromFloat(f)
}
