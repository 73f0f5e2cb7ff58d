package engine

// Types that show up in ESI market listings but cannot be sold through a
// normal station sell order. Only hard-verified entries belong here.
var marketDisabledTypeIDs = map[int32]struct{}{
	34133: {}, // Multiple Pilot Training Certificate
}

const playerStructureLocationIDMin int64 = 1_000_000_000_000

// IsMarketDisabledTypeID reports whether the type is known market-disabled.
func IsMarketDisabledTypeID(typeID int32) bool {
	_, blocked := marketDisabledTypeIDs[typeID]
	return blocked
}

// IsPlayerStructureLocationID reports whether a market location id belongs
// to an Upwell structure rather than an NPC station.
func IsPlayerStructureLocationID(locationID int64) bool {
	return locationID > playerStructureLocationIDMin
}
