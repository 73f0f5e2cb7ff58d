package esi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
)

// namesChunk is the /universe/names/ request limit.
const namesChunk = 1000

// MarketOrder mirrors the ESI market order response.
type MarketOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       int32   `json:"type_id"`
	LocationID   int64   `json:"location_id"`
	SystemID     int32   `json:"system_id"`
	Price        float64 `json:"price"`
	VolumeRemain int32   `json:"volume_remain"`
	IsBuyOrder   bool    `json:"is_buy_order"`
	RegionID     int32   `json:"-"` // set by us
}

// UniverseName is one /universe/names/ row.
type UniverseName struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

func regionOrdersURL(base string, regionID int32) string {
	return fmt.Sprintf("%s/markets/%d/orders/?datasource=tranquility&order_type=all", base, regionID)
}

// FetchStructureOrderPages fetches every page of a player structure's order
// book. Requires esi-markets.structure_markets.v1.
func (c *Client) FetchStructureOrderPages(ctx context.Context, structureID int64, accessToken string) ([][]MarketOrder, error) {
	url := fmt.Sprintf("%s/markets/structures/%d/?datasource=tranquility", c.baseURL, structureID)
	pages, _, err := getPages[MarketOrder](ctx, c, url, accessToken)
	if err != nil {
		return nil, fmt.Errorf("structure orders: %w", err)
	}
	return pages, nil
}

// FetchMarketTypeIDs lists every type with an active order in the region.
func (c *Client) FetchMarketTypeIDs(ctx context.Context, regionID int32) ([]int32, error) {
	url := fmt.Sprintf("%s/markets/%d/types/?datasource=tranquility", c.baseURL, regionID)
	pages, _, err := getPages[int32](ctx, c, url, "")
	if err != nil {
		return nil, fmt.Errorf("market types: %w", err)
	}
	return lo.Uniq(lo.Flatten(pages)), nil
}

// ResolveNames maps IDs to names through /universe/names/, caching results.
// IDs ESI does not know are absent from the result.
func (c *Client) ResolveNames(ctx context.Context, ids []int32) (map[int32]string, error) {
	out := make(map[int32]string, len(ids))
	var missing []int32
	for _, id := range lo.Uniq(ids) {
		if v, ok := c.names.Get(nameKey(id)); ok {
			out[id] = v.(string)
			continue
		}
		missing = append(missing, id)
	}

	for _, chunk := range lo.Chunk(missing, namesChunk) {
		var rows []UniverseName
		url := c.baseURL + "/universe/names/?datasource=tranquility"
		if err := c.PostJSON(ctx, url, chunk, &rows); err != nil {
			return nil, fmt.Errorf("universe names: %w", err)
		}
		for _, r := range rows {
			out[r.ID] = r.Name
			c.names.Set(nameKey(r.ID), r.Name, cache.DefaultExpiration)
		}
	}
	return out, nil
}

func nameKey(id int32) string {
	return "name:" + strconv.Itoa(int(id))
}
