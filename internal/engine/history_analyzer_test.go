package engine

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"eve-dealfinder/internal/esi"
)

const eps = 1e-9

func TestAnalyzeHistory_Empty(t *testing.T) {
	got, err := AnalyzeHistory(nil)
	if err != nil {
		t.Fatalf("AnalyzeHistory(nil): %v", err)
	}
	if got != (HistoricalStat{}) {
		t.Errorf("AnalyzeHistory(nil) = %+v, want zero", got)
	}
}

func TestAnalyzeHistory_FlatSeries(t *testing.T) {
	series := []esi.HistoryEntry{
		{Date: "2025-03-01", Highest: 100, Lowest: 100, Average: 100, Volume: 10},
		{Date: "2025-03-02", Highest: 100, Lowest: 100, Average: 100, Volume: 10},
		{Date: "2025-03-03", Highest: 100, Lowest: 100, Average: 100, Volume: 10},
	}
	got, err := AnalyzeHistory(series)
	if err != nil {
		t.Fatalf("AnalyzeHistory: %v", err)
	}
	if got.MaxPrice != 100 {
		t.Errorf("MaxPrice = %v, want 100", got.MaxPrice)
	}
	if sum := got.AvgDailyBuyVol + got.AvgDailySellVol; math.Abs(sum-10) > eps {
		t.Errorf("buy+sell per day = %v, want 10", sum)
	}
	if math.IsNaN(got.AvgDailyBuyVol) || math.IsNaN(got.AvgDailySellVol) {
		t.Errorf("NaN in %+v", got)
	}
}

func TestAnalyzeHistory_SplitsVolume(t *testing.T) {
	// Day 1: averages are both 0, every candidate ties, sell/sell wins.
	// Day 2: low sits far below the sell average, so low is a buy and
	// (110-60)/(110-10) = 0.5 of the volume goes to buy orders.
	series := []esi.HistoryEntry{
		{Date: "2025-03-02", Highest: 110, Lowest: 10, Average: 60, Volume: 100},
		{Date: "2025-03-01", Highest: 110, Lowest: 90, Average: 100, Volume: 100},
	}
	got, err := AnalyzeHistory(series)
	if err != nil {
		t.Fatalf("AnalyzeHistory: %v", err)
	}
	want := HistoricalStat{MaxPrice: 110, AvgDailyBuyVol: 25, AvgDailySellVol: 75}
	if math.Abs(got.MaxPrice-want.MaxPrice) > eps ||
		math.Abs(got.AvgDailyBuyVol-want.AvgDailyBuyVol) > eps ||
		math.Abs(got.AvgDailySellVol-want.AvgDailySellVol) > eps {
		t.Errorf("AnalyzeHistory = %+v, want %+v", got, want)
	}
}

func TestAnalyzeHistory_DateSpanIsInclusive(t *testing.T) {
	series := []esi.HistoryEntry{
		{Date: "2025-03-01", Highest: 5, Lowest: 5, Average: 5, Volume: 40},
		{Date: "2025-03-04", Highest: 5, Lowest: 5, Average: 5, Volume: 40},
	}
	got, err := AnalyzeHistory(series)
	if err != nil {
		t.Fatalf("AnalyzeHistory: %v", err)
	}
	// 80 units over 4 calendar days.
	if sum := got.AvgDailyBuyVol + got.AvgDailySellVol; math.Abs(sum-20) > eps {
		t.Errorf("daily volume = %v, want 20", sum)
	}
}

func TestAnalyzeHistory_BadDateIsInvariant(t *testing.T) {
	_, err := AnalyzeHistory([]esi.HistoryEntry{{Date: "yesterday", Highest: 1, Lowest: 1, Average: 1, Volume: 1}})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("err = %v, want ErrInvariant", err)
	}
}

func TestAnalyzeHistory_VolumeConserved(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		var series []esi.HistoryEntry
		var total float64
		for d := 0; d < 30; d++ {
			low := 50 + rng.Float64()*50
			high := low + rng.Float64()*40
			avg := low + rng.Float64()*(high-low)
			vol := int64(rng.Intn(1000))
			total += float64(vol)
			series = append(series, esi.HistoryEntry{
				Date:    "2025-01-" + twoDigits(d+1),
				Highest: high, Lowest: low, Average: avg, Volume: vol,
			})
		}
		got, err := AnalyzeHistory(series)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if got.AvgDailyBuyVol < 0 || got.AvgDailySellVol < 0 {
			t.Fatalf("run %d: negative volume %+v", run, got)
		}
		if sum := (got.AvgDailyBuyVol + got.AvgDailySellVol) * 30; math.Abs(sum-total) > 1e-6 {
			t.Fatalf("run %d: volume %v, want %v", run, sum, total)
		}
	}
}

func TestClassifyDay_ChoosesMinimumError(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		low := rng.Float64() * 100
		high := low + rng.Float64()*100
		buyAvg := rng.Float64() * 200
		sellAvg := rng.Float64() * 200

		c := ClassifyDay(high, low, buyAvg, sellAvg)
		chosen := -1
		for j, a := range candidates {
			if a == c.Assignment {
				chosen = j
			}
		}
		if chosen < 0 {
			t.Fatalf("assignment %+v is not a candidate", c.Assignment)
		}
		for j, e := range c.Errors {
			if c.Errors[chosen] > e {
				t.Fatalf("case %d: chosen error %v > candidate %d error %v", i, c.Errors[chosen], j, e)
			}
			if e == c.Errors[chosen] && j < chosen {
				t.Fatalf("case %d: tie not broken toward first candidate", i)
			}
		}
	}
}

func TestClassifyDay_TieKeepsFirst(t *testing.T) {
	c := ClassifyDay(100, 100, 0, 0)
	if c.Assignment != sellSell {
		t.Errorf("Assignment = %+v, want sell/sell", c.Assignment)
	}
}

func TestBuyFraction(t *testing.T) {
	day := esi.HistoryEntry{Date: "2025-01-01", Highest: 120, Lowest: 80, Average: 110}
	cases := []struct {
		name            string
		a               Assignment
		cumBuy, cumSell float64
		want            float64
	}{
		{"sell/sell", sellSell, 0, 0, 0},
		{"sell/buy", sellBuy, 0, 0, 0.25},
		{"buy/sell no history", buySell, 0, 0, 0.5},
		{"buy/sell proportional", buySell, 30, 10, 0.75},
		{"buy/buy", buyBuy, 0, 0, 1},
	}
	for _, tc := range cases {
		got, err := buyFraction(tc.a, day, tc.cumBuy, tc.cumSell)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if math.Abs(got-tc.want) > eps {
			t.Errorf("%s: buyFraction = %v, want %v", tc.name, got, tc.want)
		}
	}

	flat := esi.HistoryEntry{Highest: 50, Lowest: 50, Average: 50}
	if got, _ := buyFraction(sellBuy, flat, 0, 0); got != 0 {
		t.Errorf("flat sell/buy = %v, want 0", got)
	}
	odd := esi.HistoryEntry{Highest: 50, Lowest: 40, Average: 30}
	if got, _ := buyFraction(sellBuy, odd, 0, 0); got != 1 {
		t.Errorf("average below low = %v, want clamped 1", got)
	}

	if _, err := buyFraction(Assignment{High: Side(5), Low: SideBuy}, day, 0, 0); !errors.Is(err, ErrInvariant) {
		t.Errorf("unknown assignment err = %v, want ErrInvariant", err)
	}
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}
