package marketdata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"signal-backtest/services/engine"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadBarsCSVSkipsHeader(t *testing.T) {
	path := writeFile(t, "bars.csv",
		"timestamp,open,high,low,close,volume\n"+
			"60000,100,101,99,100.5,12.5\n"+
			"120000,100.5,102,100,101,8\n")

	bars, err := ReadBarsCSV(path, nil)
	if err != nil {
		t.Fatalf("ReadBarsCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Timestamp != 60000 || bars[0].High.String() != "101" {
		t.Fatalf("first bar parsed wrong: %+v", bars[0])
	}
	if bars[1].Close.String() != "101" {
		t.Fatalf("second close: %s", bars[1].Close)
	}
}

func TestReadBarsCSVWithoutHeader(t *testing.T) {
	path := writeFile(t, "bars.csv", "60000,100,101,99,100.5,12.5\n")
	bars, err := ReadBarsCSV(path, nil)
	if err != nil {
		t.Fatalf("ReadBarsCSV: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
}

func TestReadBarsCSVUTF16BOM(t *testing.T) {
	raw := "timestamp,open,high,low,close,volume\n60000,100,101,99,100.5,12.5\n"
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, _, err := transform.String(enc, raw)
	if err != nil {
		t.Fatalf("encode utf-16: %v", err)
	}
	path := writeFile(t, "bars_utf16.csv", encoded)

	bars, err := ReadBarsCSV(path, nil)
	if err != nil {
		t.Fatalf("ReadBarsCSV: %v", err)
	}
	if len(bars) != 1 || bars[0].Open.String() != "100" {
		t.Fatalf("BOM file parsed wrong: %+v", bars)
	}
}

func TestReadBarsCSVAcceptsRFC3339Timestamps(t *testing.T) {
	path := writeFile(t, "bars.csv", "2024-01-01T00:01:00Z,100,101,99,100.5,12.5\n")
	bars, err := ReadBarsCSV(path, nil)
	if err != nil {
		t.Fatalf("ReadBarsCSV: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC).UnixMilli()
	if len(bars) != 1 || bars[0].Timestamp != want {
		t.Fatalf("got %+v, want timestamp %d", bars, want)
	}
}

func TestReadBarsCSVRejectsNonNumericPrice(t *testing.T) {
	path := writeFile(t, "bars.csv", "60000,100,NaN,99,100.5,12.5\n")
	if _, err := ReadBarsCSV(path, nil); err == nil {
		t.Fatal("NaN price must be rejected at the parse boundary")
	}

	path = writeFile(t, "bars2.csv", "60000,100,101,99,oops,12.5\n")
	if _, err := ReadBarsCSV(path, nil); err == nil {
		t.Fatal("non-numeric close must be rejected")
	}
}

func TestReadSignalsCSV(t *testing.T) {
	path := writeFile(t, "signals.csv",
		"timestamp,price,score\n"+
			"60000,100.5,0.9\n"+
			"120000,101,0.4\n")

	signals, err := ReadSignalsCSV(path, nil)
	if err != nil {
		t.Fatalf("ReadSignalsCSV: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(signals))
	}
	if signals[0].Price.String() != "100.5" || signals[0].Score != 0.9 {
		t.Fatalf("first signal parsed wrong: %+v", signals[0])
	}
}

func TestReadSignalsCSVScoreIsOptional(t *testing.T) {
	path := writeFile(t, "signals.csv", "60000,100.5\n")
	signals, err := ReadSignalsCSV(path, nil)
	if err != nil {
		t.Fatalf("ReadSignalsCSV: %v", err)
	}
	if len(signals) != 1 || signals[0].Score != 0 {
		t.Fatalf("signal without score parsed wrong: %+v", signals)
	}
}

func TestWriteTradesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	trades := []engine.Trade{{
		EntryTime:  60000,
		ExitTime:   120000,
		ExitReason: engine.ReasonTakeProfit,
		HoldingMs:  60000,
	}}
	if err := WriteTradesCSV(path, trades); err != nil {
		t.Fatalf("WriteTradesCSV: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 trade", len(lines))
	}
	if !strings.HasPrefix(lines[0], "entry_time,exit_time") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "TAKE_PROFIT") {
		t.Fatalf("trade row missing exit reason: %s", lines[1])
	}
}
