package engine

import "math"

// ScaleToWallet shrinks deals whose cost exceeds wallet to the largest
// whole volume that fits, scaling fees by the same factor. Deals that
// cannot afford a single unit are dropped; affordable deals pass unchanged.
func ScaleToWallet(deals []Deal, wallet float64) []Deal {
	out := make([]Deal, 0, len(deals))
	for _, d := range deals {
		if d.Cost() <= wallet {
			out = append(out, d)
			continue
		}
		if d.Volume <= 0 {
			continue
		}
		// wallet / (buyPrice + fees/volume), kept in one division
		units := math.Floor(wallet * d.Volume / d.Cost())
		if units <= 0 {
			continue
		}
		d.Fees = d.Fees * units / d.Volume
		d.Volume = units
		out = append(out, d)
	}
	return out
}
