// Package marketdata loads bar series and signal lists from CSV files and
// ClickHouse, and persists finished reports. All price parsing happens here;
// the engine only ever sees validated decimals.
package marketdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"signal-backtest/services/engine"
)

// decodeReader peeks for a UTF-16 BOM and wraps the stream in a decoder when
// one is present. Exports from spreadsheet tools commonly carry one.
func decodeReader(f *os.File) (io.Reader, error) {
	br := bufio.NewReader(f)
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(head) >= 2 && ((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		endian := unicode.LittleEndian
		if head[0] == 0xFE {
			endian = unicode.BigEndian
		}
		return transform.NewReader(f, unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder()), nil
	}
	return br, nil
}

// parseTimestamp accepts epoch milliseconds or RFC 3339.
func parseTimestamp(field string) (int64, error) {
	s := strings.TrimPrefix(strings.TrimSpace(field), "\ufeff")
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	return t.UnixMilli(), nil
}

func parsePrice(field, column string, line int) (decimal.Decimal, error) {
	s := strings.TrimPrefix(strings.TrimSpace(field), "\ufeff")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("line %d column %s: bad decimal %q: %w", line, column, s, err)
	}
	return d, nil
}

// ReadBarsCSV parses timestamp,open,high,low,close,volume rows. A header row
// is skipped when the first field is not numeric. Rows must already be in
// ascending timestamp order; the engine rejects the series otherwise.
func ReadBarsCSV(path string, logger *zap.Logger) ([]engine.Bar, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars csv: %w", err)
	}
	defer f.Close()

	reader, err := decodeReader(f)
	if err != nil {
		return nil, fmt.Errorf("read bars csv: %w", err)
	}
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1

	var bars []engine.Bar
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bars csv line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 6 {
			return nil, fmt.Errorf("line %d: expected 6 fields, got %d", line, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if line == 1 {
				// header row
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar := engine.Bar{Timestamp: ts}
		for _, col := range []struct {
			name string
			idx  int
			dst  *decimal.Decimal
		}{
			{"open", 1, &bar.Open},
			{"high", 2, &bar.High},
			{"low", 3, &bar.Low},
			{"close", 4, &bar.Close},
			{"volume", 5, &bar.Volume},
		} {
			if *col.dst, err = parsePrice(rec[col.idx], col.name, line); err != nil {
				return nil, err
			}
		}
		if bar.Volume.IsZero() {
			logger.Warn("zero-volume bar", zap.Int64("timestamp", ts))
		}
		bars = append(bars, bar)
	}
	reportQuality(bars, logger)
	logger.Info("loaded bars", zap.String("path", path), zap.Int("count", len(bars)))
	return bars, nil
}

// reportQuality warns about suspicious but tolerable data: missing intervals
// and close-to-close jumps beyond 20%. Hard rejection of malformed series is
// the engine's job.
func reportQuality(bars []engine.Bar, logger *zap.Logger) {
	if len(bars) < 3 {
		return
	}
	interval := bars[1].Timestamp - bars[0].Timestamp
	if interval <= 0 {
		return
	}
	jumpLimit := decimal.NewFromFloat(0.2)
	gaps, jumps := 0, 0
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp-bars[i-1].Timestamp > interval {
			gaps++
		}
		prev := bars[i-1].Close
		if prev.IsPositive() {
			change := bars[i].Close.Sub(prev).Div(prev).Abs()
			if change.GreaterThan(jumpLimit) {
				jumps++
			}
		}
	}
	if gaps > 0 {
		logger.Warn("bar series has gaps", zap.Int("count", gaps), zap.Int64("interval_ms", interval))
	}
	if jumps > 0 {
		logger.Warn("bar series has wild price jumps", zap.Int("count", jumps))
	}
}

// ReadSignalsCSV parses timestamp,price[,score] rows. Ordering and duplicate
// timestamps are tolerated here; the engine sorts and deduplicates.
func ReadSignalsCSV(path string, logger *zap.Logger) ([]engine.Signal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signals csv: %w", err)
	}
	defer f.Close()

	reader, err := decodeReader(f)
	if err != nil {
		return nil, fmt.Errorf("read signals csv: %w", err)
	}
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1

	var signals []engine.Signal
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read signals csv line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 fields, got %d", line, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := parsePrice(rec[1], "price", line)
		if err != nil {
			return nil, err
		}
		sig := engine.Signal{Timestamp: ts, Price: price}
		if len(rec) > 2 {
			score, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad score %q: %w", line, rec[2], err)
			}
			sig.Score = score
		}
		signals = append(signals, sig)
	}
	logger.Info("loaded signals", zap.String("path", path), zap.Int("count", len(signals)))
	return signals, nil
}

// WriteTradesCSV exports the trade log in a spreadsheet-friendly layout.
func WriteTradesCSV(path string, trades []engine.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"entry_time", "exit_time", "entry_price", "exit_price", "quantity",
		"capital_committed", "net_proceeds", "fees", "return_pct",
		"exit_reason", "holding_ms",
	}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := w.Write([]string{
			strconv.FormatInt(t.EntryTime, 10),
			strconv.FormatInt(t.ExitTime, 10),
			t.EntryPrice.String(),
			t.ExitPrice.String(),
			t.Quantity.String(),
			t.CapitalCommitted.String(),
			t.NetProceeds.String(),
			t.Fees.String(),
			t.ReturnPct.StringFixed(6),
			string(t.ExitReason),
			strconv.FormatInt(t.HoldingMs, 10),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
