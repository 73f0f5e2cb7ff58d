package engine

import (
	"fmt"
	"sort"
	"time"

	"eve-dealfinder/internal/esi"
)

// Side is the order side a daily extreme price is attributed to.
type Side int

const (
	SideSell Side = iota
	SideBuy
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// Assignment attributes a day's highest and lowest price to order sides.
type Assignment struct {
	High Side
	Low  Side
}

var (
	sellSell = Assignment{High: SideSell, Low: SideSell}
	sellBuy  = Assignment{High: SideSell, Low: SideBuy}
	buySell  = Assignment{High: SideBuy, Low: SideSell}
	buyBuy   = Assignment{High: SideBuy, Low: SideBuy}

	// candidates in tie-break order
	candidates = [4]Assignment{sellSell, sellBuy, buySell, buyBuy}
)

// DayClassification is the outcome of classifying one day.
type DayClassification struct {
	Assignment Assignment
	Errors     [4]float64 // squared error of each candidate, in candidate order
}

// ClassifyDay picks the side assignment of a day's extremes whose squared
// distance to the running buy/sell averages is smallest. Ties keep the
// earliest candidate.
func ClassifyDay(highest, lowest, buyAvg, sellAvg float64) DayClassification {
	ref := func(s Side) float64 {
		if s == SideBuy {
			return buyAvg
		}
		return sellAvg
	}

	var out DayClassification
	best := 0
	for i, a := range candidates {
		dh := highest - ref(a.High)
		dl := lowest - ref(a.Low)
		out.Errors[i] = dh*dh + dl*dl
		if out.Errors[i] < out.Errors[best] {
			best = i
		}
	}
	out.Assignment = candidates[best]
	return out
}

// buyFraction is the share of a day's volume traded against buy orders.
func buyFraction(a Assignment, day esi.HistoryEntry, cumBuy, cumSell float64) (float64, error) {
	switch a {
	case sellSell:
		return 0, nil
	case sellBuy:
		if day.Highest == day.Lowest {
			return 0, nil
		}
		f := (day.Highest - day.Average) / (day.Highest - day.Lowest)
		return min(1, max(0, f)), nil
	case buySell:
		// Buy above sell cannot happen within one day; fall back to the
		// split observed so far.
		total := cumBuy + cumSell
		if total == 0 {
			return 0.5, nil
		}
		return cumBuy / total, nil
	case buyBuy:
		return 1, nil
	}
	return 0, fmt.Errorf("%w: day %s classified as high=%s low=%s", ErrInvariant, day.Date, a.High, a.Low)
}

// AnalyzeHistory splits each day's volume into buy and sell components and
// averages them over the series' inclusive date span.
func AnalyzeHistory(series []esi.HistoryEntry) (HistoricalStat, error) {
	if len(series) == 0 {
		return HistoricalStat{}, nil
	}

	// ESI does not guarantee chronological order.
	days := make([]esi.HistoryEntry, len(series))
	copy(days, series)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	var (
		buyAvg, sellAvg           float64
		cumBuy, cumSell           float64
		buyWeighted, sellWeighted float64
		maxPrice                  float64
	)
	for _, d := range days {
		c := ClassifyDay(d.Highest, d.Lowest, buyAvg, sellAvg)
		frac, err := buyFraction(c.Assignment, d, cumBuy, cumSell)
		if err != nil {
			return HistoricalStat{}, err
		}

		vol := float64(d.Volume)
		buyVol := vol * frac
		sellVol := vol - buyVol

		cumBuy += buyVol
		cumSell += sellVol
		buyWeighted += d.Lowest * buyVol
		sellWeighted += d.Highest * sellVol
		if cumBuy > 0 {
			buyAvg = buyWeighted / cumBuy
		}
		if cumSell > 0 {
			sellAvg = sellWeighted / cumSell
		}

		if d.Highest > maxPrice {
			maxPrice = d.Highest
		}
	}

	span, err := dateSpanDays(days[0].Date, days[len(days)-1].Date)
	if err != nil {
		return HistoricalStat{}, err
	}

	return HistoricalStat{
		MaxPrice:        maxPrice,
		AvgDailyBuyVol:  cumBuy / span,
		AvgDailySellVol: cumSell / span,
	}, nil
}

// dateSpanDays counts calendar days from first to last inclusive.
func dateSpanDays(first, last string) (float64, error) {
	f, err := time.Parse(time.DateOnly, first)
	if err != nil {
		return 0, fmt.Errorf("%w: history date %q: %v", ErrInvariant, first, err)
	}
	l, err := time.Parse(time.DateOnly, last)
	if err != nil {
		return 0, fmt.Errorf("%w: history date %q: %v", ErrInvariant, last, err)
	}
	return float64(1 + int(l.Sub(f)/(24*time.Hour))), nil
}
