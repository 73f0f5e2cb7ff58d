package engine

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvariant marks a data-contract violation from a collaborator, such as
// an unclassifiable history day or a missing required skill. It is fatal to
// a discovery run.
var ErrInvariant = errors.New("computation invariant violated")

// TradableType is an item category traded on the market.
type TradableType struct {
	TypeID   int32  `json:"type_id"`
	TypeName string `json:"type_name"`
}

// HistoricalStat is the daily aggregate derived from a type's market history.
type HistoricalStat struct {
	MaxPrice        float64 `json:"max_price"`
	AvgDailyBuyVol  float64 `json:"avg_daily_buy_vol"`
	AvgDailySellVol float64 `json:"avg_daily_sell_vol"`
}

// CacheEntry is the persisted form of a HistoricalStat. Entries are replaced
// wholesale, never edited.
type CacheEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Data      HistoricalStat `json:"data"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}

// PriceSummary holds the live best prices of one type at one market.
type PriceSummary struct {
	MaxBuy  float64 `json:"max_buy"`
	HasBuy  bool    `json:"has_buy"`
	MinSell float64 `json:"min_sell"`
	HasSell bool    `json:"has_sell"`
}

// Location is where the character trades. StructureID set means a player
// structure; StationID set means an NPC station; neither means the whole
// region's market.
type Location struct {
	RegionID    int32 `json:"region_id"`
	SystemID    int32 `json:"system_id"`
	StationID   int64 `json:"station_id,omitempty"`
	StructureID int64 `json:"structure_id,omitempty"`
}

// MarketLocationID is the order-book location deals are placed at, 0 for region-wide.
func (l Location) MarketLocationID() int64 {
	if l.StructureID != 0 {
		return l.StructureID
	}
	return l.StationID
}

// IsNPC reports whether NPC broker rates apply.
func (l Location) IsNPC() bool {
	return l.StructureID == 0
}

// OpenOrder is an order the character already has on the market.
type OpenOrder struct {
	TypeID     int32 `json:"type_id"`
	LocationID int64 `json:"location_id"`
	RegionID   int32 `json:"region_id"`
}

// Deal is a buy-order/sell-order pair for one type at the trade location.
type Deal struct {
	Type      TradableType
	Volume    float64
	BuyPrice  float64
	SellPrice float64
	Fees      float64
}

// Profit is derived on every call so it can never drift from the fields.
func (d Deal) Profit() float64 {
	return d.Volume*(d.SellPrice-d.BuyPrice) - d.Fees
}

// Cost is the capital tied up by the buy leg plus all fees.
func (d Deal) Cost() float64 {
	return d.Volume*d.BuyPrice + d.Fees
}

type dealJSON struct {
	TypeID    int32   `json:"type_id"`
	TypeName  string  `json:"type_name"`
	Volume    float64 `json:"volume"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
	Fees      float64 `json:"fees"`
	Profit    float64 `json:"profit"`
}

func (d Deal) MarshalJSON() ([]byte, error) {
	return json.Marshal(dealJSON{
		TypeID:    d.Type.TypeID,
		TypeName:  d.Type.TypeName,
		Volume:    d.Volume,
		BuyPrice:  d.BuyPrice,
		SellPrice: d.SellPrice,
		Fees:      d.Fees,
		Profit:    d.Profit(),
	})
}

// UnmarshalJSON ignores the encoded profit; it is recomputed from the fields.
func (d *Deal) UnmarshalJSON(data []byte) error {
	var v dealJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*d = Deal{
		Type:      TradableType{TypeID: v.TypeID, TypeName: v.TypeName},
		Volume:    v.Volume,
		BuyPrice:  v.BuyPrice,
		SellPrice: v.SellPrice,
		Fees:      v.Fees,
	}
	return nil
}
