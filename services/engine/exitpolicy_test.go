package engine

import (
	"testing"
	"time"
)

func bar(ts int64, open, high, low, close float64) Bar {
	return Bar{Timestamp: ts, Open: dec(open), High: dec(high), Low: dec(low), Close: dec(close), Volume: dec(1)}
}

func holdingPosition(entryTs int64, entryPrice float64) *Position {
	return &Position{
		EntryTime:  entryTs,
		EntryPrice: dec(entryPrice),
		Quantity:   dec(1),
		PeakPrice:  dec(entryPrice),
	}
}

func TestTakeProfitFillsAtThresholdPrice(t *testing.T) {
	p := NewExitPolicy(ExitConfig{TakeProfit: 0.05, StopLoss: 0.02})
	pos := holdingPosition(0, 100)

	d := p.Evaluate(pos, bar(60_000, 101, 106, 100, 104))
	if !d.Exit || d.Reason != ReasonTakeProfit {
		t.Fatalf("want take-profit exit, got %+v", d)
	}
	// Fill is assumed at the threshold, not the bar close.
	approxEqual(t, d.Price, 105, 1e-9)
}

func TestStopLossFillsAtThresholdPrice(t *testing.T) {
	p := NewExitPolicy(ExitConfig{TakeProfit: 0.05, StopLoss: 0.02})
	pos := holdingPosition(0, 100)

	d := p.Evaluate(pos, bar(60_000, 99, 100, 97, 99))
	if !d.Exit || d.Reason != ReasonStopLoss {
		t.Fatalf("want stop-loss exit, got %+v", d)
	}
	approxEqual(t, d.Price, 98, 1e-9)
}

func TestStopLossWinsSameBarDoubleTrigger(t *testing.T) {
	// A bar wide enough to satisfy both thresholds must always resolve to
	// the stop-loss, identically across runs.
	p := NewExitPolicy(ExitConfig{TakeProfit: 0.05, StopLoss: 0.02})
	pos := holdingPosition(0, 100)
	wide := bar(60_000, 100, 110, 90, 100)

	for i := 0; i < 100; i++ {
		d := p.Evaluate(pos, wide)
		if !d.Exit || d.Reason != ReasonStopLoss {
			t.Fatalf("iteration %d: want stop-loss on double trigger, got %+v", i, d)
		}
		approxEqual(t, d.Price, 98, 1e-9)
	}
}

func TestTrailingStopArmsThenTriggers(t *testing.T) {
	cfg := ExitConfig{
		Trailing: TrailingConfig{Enabled: true, ActivationPct: 0.03, TrailPct: 0.02},
	}
	p := NewExitPolicy(cfg)
	pos := holdingPosition(0, 100)
	activation := p.ActivationPct()

	// Not armed yet: a dip means nothing.
	b1 := bar(60_000, 100, 101, 99, 100)
	pos.Track(b1, activation)
	if d := p.Evaluate(pos, b1); d.Exit {
		t.Fatalf("unarmed trailing stop must not exit, got %+v", d)
	}
	if pos.TrailingArmed {
		t.Fatal("trailing stop armed below activation threshold")
	}

	// Peak reaches +4%: arms.
	b2 := bar(120_000, 101, 104, 100, 103)
	pos.Track(b2, activation)
	if !pos.TrailingArmed {
		t.Fatal("trailing stop should be armed at +4% peak")
	}
	if d := p.Evaluate(pos, b2); d.Exit {
		t.Fatalf("no retrace yet, got %+v", d)
	}

	// Close falls 2% of entry below the 104 peak: triggers at the close.
	b3 := bar(180_000, 103, 103, 101, 101.5)
	pos.Track(b3, activation)
	d := p.Evaluate(pos, b3)
	if !d.Exit || d.Reason != ReasonTrailingStop {
		t.Fatalf("want trailing-stop exit, got %+v", d)
	}
	approxEqual(t, d.Price, 101.5, 1e-9)
}

func TestTimeoutExitsAtClose(t *testing.T) {
	p := NewExitPolicy(ExitConfig{MaxHold: time.Hour})
	pos := holdingPosition(0, 100)

	if d := p.Evaluate(pos, bar(time.Hour.Milliseconds()-1, 100, 101, 99, 100.5)); d.Exit {
		t.Fatalf("exited before max hold elapsed: %+v", d)
	}
	d := p.Evaluate(pos, bar(time.Hour.Milliseconds(), 100, 101, 99, 100.5))
	if !d.Exit || d.Reason != ReasonTimeout {
		t.Fatalf("want timeout exit, got %+v", d)
	}
	approxEqual(t, d.Price, 100.5, 1e-9)
}

func TestDisabledTriggersHold(t *testing.T) {
	p := NewExitPolicy(ExitConfig{})
	pos := holdingPosition(0, 100)

	if d := p.Evaluate(pos, bar(60_000, 100, 150, 50, 100)); d.Exit {
		t.Fatalf("all triggers disabled, got %+v", d)
	}
}

func TestThresholdPriorityOverTimeBasedTriggers(t *testing.T) {
	// Stop-loss and timeout both satisfied on the same bar: the threshold
	// trigger wins because it is evaluated first.
	p := NewExitPolicy(ExitConfig{StopLoss: 0.02, MaxHold: time.Minute})
	pos := holdingPosition(0, 100)

	d := p.Evaluate(pos, bar(10*time.Minute.Milliseconds(), 99, 99, 95, 96))
	if !d.Exit || d.Reason != ReasonStopLoss {
		t.Fatalf("want stop-loss before timeout, got %+v", d)
	}
}
