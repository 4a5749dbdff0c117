package arrowpipeline

import (
	"strconv"
	"testing"

	"github.com/shopspring/decimal"

	"signal-backtest/services/config"
	"signal-backtest/services/engine"
)

func sampleBars(n int) []engine.Bar {
	bars := make([]engine.Bar, n)
	for i := range bars {
		base := decimal.NewFromInt(int64(100 + i))
		bars[i] = engine.Bar{
			Timestamp: int64(i) * 60_000,
			Open:      base,
			High:      base.Add(decimal.NewFromFloat(0.5)),
			Low:       base.Sub(decimal.NewFromFloat(0.5)),
			Close:     base.Add(decimal.NewFromFloat(0.25)),
			Volume:    decimal.NewFromInt(int64(i + 1)),
		}
	}
	return bars
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec(config.ArrowConfig{BatchSize: 16}, nil)
	in := sampleBars(50) // spans multiple record batches

	data, err := codec.EncodeBars(in)
	if err != nil {
		t.Fatalf("EncodeBars: %v", err)
	}
	out, err := codec.DecodeBars(data)
	if err != nil {
		t.Fatalf("DecodeBars: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d bars, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Timestamp != in[i].Timestamp {
			t.Fatalf("bar %d timestamp %d != %d", i, out[i].Timestamp, in[i].Timestamp)
		}
		if !out[i].Close.Equal(in[i].Close) || !out[i].Volume.Equal(in[i].Volume) {
			t.Fatalf("bar %d values changed in transit: %+v vs %+v", i, out[i], in[i])
		}
	}
}

func TestEncodePreservesDecimalPrecision(t *testing.T) {
	codec := NewCodec(config.ArrowConfig{}, nil)
	price, err := decimal.NewFromString("50123456.789012345678")
	if err != nil {
		t.Fatal(err)
	}
	in := []engine.Bar{{
		Timestamp: 60_000,
		Open:      price, High: price, Low: price, Close: price,
		Volume: decimal.NewFromInt(1),
	}}

	data, err := codec.EncodeBars(in)
	if err != nil {
		t.Fatalf("EncodeBars: %v", err)
	}
	out, err := codec.DecodeBars(data)
	if err != nil {
		t.Fatalf("DecodeBars: %v", err)
	}
	if got := out[0].Close.String(); got != price.String() {
		t.Fatalf("precision lost: %s != %s", got, price.String())
	}
}

func TestEncodeEmptySeriesFails(t *testing.T) {
	codec := NewCodec(config.ArrowConfig{}, nil)
	if _, err := codec.EncodeBars(nil); err == nil {
		t.Fatal("encoding an empty series must fail")
	}
}

func TestDecodeGarbageFails(t *testing.T) {
	codec := NewCodec(config.ArrowConfig{}, nil)
	if _, err := codec.DecodeBars([]byte("not an arrow stream " + strconv.Itoa(42))); err == nil {
		t.Fatal("garbage input must fail to decode")
	}
}
