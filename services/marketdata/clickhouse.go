package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-backtest/services/config"
	"signal-backtest/services/engine"
)

// Store reads bar series from ClickHouse and persists finished reports.
// Prices travel as strings end to end so the Decimal128 columns never pass
// through float64.
type Store struct {
	conn   driver.Conn
	db     string
	logger *zap.Logger
}

func NewStore(cfg config.ClickHouseConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return &Store{conn: conn, db: cfg.Database, logger: logger}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// QueryBars returns the bar series for one symbol and timeframe over
// [startMs, endMs), ordered by open time.
func (s *Store) QueryBars(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]engine.Bar, error) {
	query := fmt.Sprintf(`
		SELECT open_time_ms, toString(open), toString(high), toString(low), toString(close), toString(volume)
		FROM %s.bars
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms`, s.db)

	rows, err := s.conn.Query(ctx, query, symbol, interval, uint64(startMs), uint64(endMs))
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []engine.Bar
	for rows.Next() {
		var (
			ts                             uint64
			open, high, low, close, volume string
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bar := engine.Bar{Timestamp: int64(ts)}
		for _, col := range []struct {
			raw string
			dst *decimal.Decimal
		}{
			{open, &bar.Open}, {high, &bar.High}, {low, &bar.Low},
			{close, &bar.Close}, {volume, &bar.Volume},
		} {
			d, err := decimal.NewFromString(col.raw)
			if err != nil {
				return nil, fmt.Errorf("bar at %d: bad decimal %q: %w", ts, col.raw, err)
			}
			*col.dst = d
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	s.logger.Info("queried bars",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(bars)))
	return bars, nil
}

// InsertBars batch-inserts a bar series for one symbol and timeframe.
func (s *Store) InsertBars(ctx context.Context, symbol, interval string, bars []engine.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s.bars (symbol, interval, open_time_ms, open, high, low, close, volume, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.db)

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	for _, b := range bars {
		err := batch.Append(
			symbol,
			interval,
			uint64(b.Timestamp),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
			now,
		)
		if err != nil {
			return fmt.Errorf("append bar at %d: %w", b.Timestamp, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	s.logger.Info("inserted bars",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(bars)))
	return nil
}

// SaveReport persists a finished run keyed by job id. The full report is
// stored as JSON next to the headline numbers used for listing.
func (s *Store) SaveReport(ctx context.Context, jobID, symbol string, report *engine.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s.reports (job_id, symbol, total_trades, total_return_pct, sharpe_ratio, report_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.db)
	err = s.conn.Exec(ctx, query,
		jobID, symbol,
		uint32(report.TotalTrades),
		report.TotalReturnPct,
		report.SharpeRatio,
		string(payload),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", jobID, err)
	}
	return nil
}

// LoadReport fetches a persisted run by job id.
func (s *Store) LoadReport(ctx context.Context, jobID string) (*engine.Report, error) {
	query := fmt.Sprintf(`SELECT report_json FROM %s.reports WHERE job_id = ? ORDER BY created_at DESC LIMIT 1`, s.db)
	var payload string
	if err := s.conn.QueryRow(ctx, query, jobID).Scan(&payload); err != nil {
		return nil, fmt.Errorf("load report %s: %w", jobID, err)
	}
	var report engine.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", jobID, err)
	}
	return &report, nil
}
