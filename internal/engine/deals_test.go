package engine

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"eve-dealfinder/internal/esi"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestFeeModel(t *testing.T) {
	skills := map[int32]int{SkillBrokerRelations: 5, SkillAccounting: 4}

	npc, err := FeeModelFromSkills(skills, true)
	if err != nil {
		t.Fatalf("FeeModelFromSkills: %v", err)
	}
	if !near(npc.BrokerFee(), 0.035) {
		t.Errorf("NPC BrokerFee = %v, want 0.035", npc.BrokerFee())
	}
	if !near(npc.SalesTax(), 0.05*(1-0.044)) {
		t.Errorf("SalesTax = %v", npc.SalesTax())
	}
	if !near(npc.SellFeeRate(), npc.BrokerFee()+npc.SalesTax()) {
		t.Errorf("SellFeeRate = %v", npc.SellFeeRate())
	}

	structure, _ := FeeModelFromSkills(skills, false)
	if structure.BrokerFee() != 0.02 {
		t.Errorf("structure BrokerFee = %v, want 0.02", structure.BrokerFee())
	}
}

func TestFeeModel_MissingSkill(t *testing.T) {
	for _, skills := range []map[int32]int{
		{SkillAccounting: 5},
		{SkillBrokerRelations: 5},
		nil,
	} {
		if _, err := FeeModelFromSkills(skills, true); !errors.Is(err, ErrInvariant) {
			t.Errorf("FeeModelFromSkills(%v) err = %v, want ErrInvariant", skills, err)
		}
	}
}

func TestFeeModel_MinimumPerLeg(t *testing.T) {
	f := FeeModel{NPCStation: true}
	if got := f.Fees(1, 10, 20); got != 200 {
		t.Errorf("Fees on tiny trade = %v, want 200", got)
	}
	// 1000 * 1000 * 0.05 = 50000 buy leg; 1000 * 2000 * 0.10 = 200000 sell leg.
	if got := f.Fees(1000, 1000, 2000); !near(got, 250000) {
		t.Errorf("Fees = %v, want 250000", got)
	}
}

func TestSummarizeOrders(t *testing.T) {
	orders := []esi.MarketOrder{
		{TypeID: 1, LocationID: 60003760, Price: 10, IsBuyOrder: true},
		{TypeID: 1, LocationID: 60003760, Price: 12, IsBuyOrder: true},
		{TypeID: 1, LocationID: 60003760, Price: 20},
		{TypeID: 1, LocationID: 60003760, Price: 18},
		{TypeID: 1, LocationID: 99, Price: 1},
		{TypeID: 2, LocationID: 60003760, Price: 5, IsBuyOrder: true},
	}

	got := SummarizeOrders(orders, 60003760)
	if s := got[1]; !s.HasBuy || s.MaxBuy != 12 || !s.HasSell || s.MinSell != 18 {
		t.Errorf("type 1 = %+v", s)
	}
	if s := got[2]; !s.HasBuy || s.HasSell {
		t.Errorf("type 2 = %+v, want buy only", s)
	}

	all := SummarizeOrders(orders, 0)
	if all[1].MinSell != 1 {
		t.Errorf("region-wide MinSell = %v, want 1", all[1].MinSell)
	}
}

func TestPriceSummaryMerge_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var parts []PriceSummary
	for i := 0; i < 20; i++ {
		var p PriceSummary
		if rng.Intn(2) == 0 {
			p.MaxBuy, p.HasBuy = rng.Float64()*100, true
		}
		if rng.Intn(2) == 0 {
			p.MinSell, p.HasSell = rng.Float64()*100, true
		}
		parts = append(parts, p)
	}

	var forward, backward PriceSummary
	for i := range parts {
		forward = forward.Merge(parts[i])
		backward = parts[len(parts)-1-i].Merge(backward)
	}
	if forward != backward {
		t.Errorf("merge order changed result: %+v vs %+v", forward, backward)
	}
}

func TestComputeDeals(t *testing.T) {
	types := map[int32]TradableType{
		1: {TypeID: 1, TypeName: "Tritanium"},
		2: {TypeID: 2, TypeName: "Pyerite"},
		4: {TypeID: 4, TypeName: "Unpriced"},
	}
	prices := map[int32]PriceSummary{
		1: {MaxBuy: 100, HasBuy: true, MinSell: 150, HasSell: true},
		2: {MinSell: 1000, HasSell: true},
	}
	stats := map[int32]HistoricalStat{
		1: {MaxPrice: 200, AvgDailyBuyVol: 50, AvgDailySellVol: 30},
		2: {MaxPrice: 100, AvgDailyBuyVol: 10, AvgDailySellVol: 10},
		3: {MaxPrice: 1, AvgDailyBuyVol: 1, AvgDailySellVol: 1}, // no TradableType
		4: {MaxPrice: 10, AvgDailyBuyVol: 2, AvgDailySellVol: 4},
	}
	fees := FeeModel{BrokerRelations: 5, Accounting: 5, NPCStation: true}

	deals := ComputeDeals(types, prices, stats, fees, 1)
	if len(deals) != 3 {
		t.Fatalf("len(deals) = %d, want 3", len(deals))
	}

	d := deals[0]
	if d.Type.TypeID != 1 || d.Volume != 30 {
		t.Fatalf("deal 1 = %+v", d)
	}
	if !near(d.BuyPrice, 100.1) || !near(d.SellPrice, 149.85) {
		t.Errorf("deal 1 prices = %v / %v", d.BuyPrice, d.SellPrice)
	}
	if !near(d.Fees, fees.Fees(30, 100.1, 149.85)) {
		t.Errorf("deal 1 fees = %v", d.Fees)
	}

	// No buy order: bid the floor. Sell capped by 1.05 * historical max.
	if d := deals[1]; d.BuyPrice != 0.01 || !near(d.SellPrice, 105) {
		t.Errorf("deal 2 = %+v", d)
	}
	// No orders at all: priced off history alone.
	if d := deals[2]; d.BuyPrice != 0.01 || !near(d.SellPrice, 10.5) || d.Volume != 2 {
		t.Errorf("deal 4 = %+v", d)
	}

	if got := ComputeDeals(types, prices, stats, fees, 3)[0].Volume; got != 90 {
		t.Errorf("3-day horizon volume = %v, want 90", got)
	}
}

func TestDealProfitIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		d := Deal{
			Volume:    rng.Float64() * 1000,
			BuyPrice:  rng.Float64() * 1000,
			SellPrice: rng.Float64() * 1000,
			Fees:      rng.Float64() * 1000,
		}
		if want := d.Volume*(d.SellPrice-d.BuyPrice) - d.Fees; d.Profit() != want {
			t.Fatalf("Profit = %v, want %v", d.Profit(), want)
		}
	}
}

func TestDealJSON(t *testing.T) {
	d := Deal{Type: TradableType{TypeID: 34, TypeName: "Tritanium"}, Volume: 10, BuyPrice: 5, SellPrice: 7, Fees: 3}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if m["profit"] != 17.0 || m["type_name"] != "Tritanium" {
		t.Errorf("encoded = %s", raw)
	}

	var back Deal
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != d {
		t.Errorf("decoded = %+v, want %+v", back, d)
	}
}
