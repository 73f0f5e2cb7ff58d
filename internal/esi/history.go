package esi

import (
	"context"
	"fmt"
)

// HistoryEntry represents a single day of market history for an item in a region.
type HistoryEntry struct {
	Date       string  `json:"date"`
	Average    float64 `json:"average"`
	Highest    float64 `json:"highest"`
	Lowest     float64 `json:"lowest"`
	Volume     int64   `json:"volume"`
	OrderCount int64   `json:"order_count"`
}

// FetchMarketHistory fetches the daily history of a type in a region.
// A type with no history yields an error wrapping ErrNotFound.
func (c *Client) FetchMarketHistory(ctx context.Context, regionID, typeID int32) ([]HistoryEntry, error) {
	url := fmt.Sprintf("%s/markets/%d/history/?datasource=tranquility&type_id=%d",
		c.baseURL, regionID, typeID)

	var entries []HistoryEntry
	if err := c.GetJSON(ctx, url, &entries); err != nil {
		return nil, fmt.Errorf("market history %d/%d: %w", regionID, typeID, err)
	}
	return entries, nil
}
