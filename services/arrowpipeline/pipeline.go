// Package arrowpipeline serializes bar series to Apache Arrow IPC streams so
// sweep workers and external consumers can share one immutable encoded copy
// instead of cloning bar slices per run.
package arrowpipeline

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-backtest/services/config"
	"signal-backtest/services/engine"
)

// barSchema carries prices as strings so decimal values survive the trip
// without passing through float64.
var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.BinaryTypes.String},
	{Name: "high", Type: arrow.BinaryTypes.String},
	{Name: "low", Type: arrow.BinaryTypes.String},
	{Name: "close", Type: arrow.BinaryTypes.String},
	{Name: "volume", Type: arrow.BinaryTypes.String},
}, nil)

// Codec encodes and decodes bar series as Arrow IPC streams.
type Codec struct {
	alloc     memory.Allocator
	batchSize int
	logger    *zap.Logger
}

func NewCodec(cfg config.ArrowConfig, logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 8192
	}
	return &Codec{
		alloc:     memory.NewGoAllocator(),
		batchSize: batch,
		logger:    logger,
	}
}

// EncodeBars writes the series as one IPC stream of record batches.
func (c *Codec) EncodeBars(bars []engine.Bar) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to encode")
	}

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(barSchema), ipc.WithAllocator(c.alloc))

	for start := 0; start < len(bars); start += c.batchSize {
		end := start + c.batchSize
		if end > len(bars) {
			end = len(bars)
		}
		rec := c.buildRecord(bars[start:end])
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("write arrow record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	c.logger.Debug("encoded bars",
		zap.Int("bars", len(bars)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (c *Codec) buildRecord(bars []engine.Bar) arrow.Record {
	b := array.NewRecordBuilder(c.alloc, barSchema)
	defer b.Release()

	ts := b.Field(0).(*array.Int64Builder)
	cols := []*array.StringBuilder{
		b.Field(1).(*array.StringBuilder),
		b.Field(2).(*array.StringBuilder),
		b.Field(3).(*array.StringBuilder),
		b.Field(4).(*array.StringBuilder),
		b.Field(5).(*array.StringBuilder),
	}
	for _, bar := range bars {
		ts.Append(bar.Timestamp)
		for i, d := range []decimal.Decimal{bar.Open, bar.High, bar.Low, bar.Close, bar.Volume} {
			cols[i].Append(d.String())
		}
	}
	return b.NewRecord()
}

// DecodeBars reads an IPC stream produced by EncodeBars back into a series.
func (c *Codec) DecodeBars(data []byte) ([]engine.Bar, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(c.alloc))
	if err != nil {
		return nil, fmt.Errorf("open arrow reader: %w", err)
	}
	defer reader.Release()

	var bars []engine.Bar
	for reader.Next() {
		rec := reader.Record()
		ts := rec.Column(0).(*array.Int64)
		cols := []*array.String{
			rec.Column(1).(*array.String),
			rec.Column(2).(*array.String),
			rec.Column(3).(*array.String),
			rec.Column(4).(*array.String),
			rec.Column(5).(*array.String),
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			bar := engine.Bar{Timestamp: ts.Value(i)}
			dsts := []*decimal.Decimal{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume}
			for j, col := range cols {
				d, err := decimal.NewFromString(col.Value(i))
				if err != nil {
					return nil, fmt.Errorf("row %d field %s: %w", i, barSchema.Field(j+1).Name, err)
				}
				*dsts[j] = d
			}
			bars = append(bars, bar)
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return bars, nil
}
