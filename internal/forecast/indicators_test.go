package forecast

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestVolatility(t *testing.T) {
	if !Volatility(nil, 10).IsZero() {
		t.Fatal("no candles should yield zero volatility")
	}

	// Range 0.4 over mean 1.3 is roughly 30.77%.
	vol := Volatility(candlesFromCloses(1.1, 1.2, 1.3, 1.4, 1.5), 10)
	want := decimal.NewFromFloat(30.76)
	if vol.LessThan(want) || vol.GreaterThan(decimal.NewFromFloat(30.78)) {
		t.Fatalf("volatility = %s, want about 30.77", vol)
	}

	// Window restriction: only the newest two closes count.
	vol = Volatility(candlesFromCloses(1.0, 2.0, 3.0, 3.0), 2)
	if !vol.IsZero() {
		t.Fatalf("flat window should be zero, got %s", vol)
	}
}

func TestDurationFor(t *testing.T) {
	cases := []struct {
		volPct float64
		max    int
		want   int
	}{
		{0.6, 5, 2},
		{0.51, 5, 2},
		{0.5, 5, 3},
		{0.3, 5, 3},
		{0.2, 5, 3},
		{0.19, 5, 5},
		{0.05, 5, 5},
		{0.05, 3, 3},
	}
	for _, tc := range cases {
		got := DurationFor(decimal.NewFromFloat(tc.volPct), tc.max)
		if got != tc.want {
			t.Fatalf("DurationFor(%v, %d) = %d, want %d", tc.volPct, tc.max, got, tc.want)
		}
	}
}

func TestSMA(t *testing.T) {
	candles := candlesFromCloses(1.0, 2.0, 3.0, 4.0)

	got := SMA(candles, 2)
	if !got.Equal(decimal.NewFromFloat(3.5)) {
		t.Fatalf("SMA(2) = %s, want 3.5", got)
	}

	if !SMA(candles, 10).IsZero() {
		t.Fatal("SMA with too few closes should be zero")
	}
}
