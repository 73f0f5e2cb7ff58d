package esi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/patrickmn/go-cache"
)

// CharacterOrder represents a character's market order.
type CharacterOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       int32   `json:"type_id"`
	LocationID   int64   `json:"location_id"`
	RegionID     int32   `json:"region_id"`
	Price        float64 `json:"price"`
	VolumeRemain int32   `json:"volume_remain"`
	VolumeTotal  int32   `json:"volume_total"`
	IsBuyOrder   bool    `json:"is_buy_order"`
	Duration     int     `json:"duration"`
	Issued       string  `json:"issued"`
}

// SkillEntry represents a single trained skill.
type SkillEntry struct {
	SkillID      int32 `json:"skill_id"`
	ActiveLevel  int   `json:"active_skill_level"`
	TrainedLevel int   `json:"trained_skill_level"`
	SkillPoints  int64 `json:"skillpoints_in_skill"`
}

// SkillSheet is the character's skill data.
type SkillSheet struct {
	Skills    []SkillEntry `json:"skills"`
	TotalSP   int64        `json:"total_sp"`
	UnallocSP int64        `json:"unallocated_sp"`
}

// CharacterLocation represents the character's current location.
type CharacterLocation struct {
	SolarSystemID int32 `json:"solar_system_id"`
	StationID     int64 `json:"station_id,omitempty"`
	StructureID   int64 `json:"structure_id,omitempty"`
}

// GetCharacterOrders fetches a character's active market orders.
func (c *Client) GetCharacterOrders(ctx context.Context, characterID int64, accessToken string) ([]CharacterOrder, error) {
	url := fmt.Sprintf("%s/characters/%d/orders/?datasource=tranquility", c.baseURL, characterID)
	var orders []CharacterOrder
	if err := c.AuthGetJSON(ctx, url, accessToken, &orders); err != nil {
		return nil, fmt.Errorf("character orders: %w", err)
	}
	return orders, nil
}

// GetWalletBalance fetches a character's ISK balance.
func (c *Client) GetWalletBalance(ctx context.Context, characterID int64, accessToken string) (float64, error) {
	url := fmt.Sprintf("%s/characters/%d/wallet/?datasource=tranquility", c.baseURL, characterID)
	var balance float64
	if err := c.AuthGetJSON(ctx, url, accessToken, &balance); err != nil {
		return 0, fmt.Errorf("wallet: %w", err)
	}
	return balance, nil
}

// GetSkills fetches a character's trained skills.
func (c *Client) GetSkills(ctx context.Context, characterID int64, accessToken string) (*SkillSheet, error) {
	url := fmt.Sprintf("%s/characters/%d/skills/?datasource=tranquility", c.baseURL, characterID)
	var sheet SkillSheet
	if err := c.AuthGetJSON(ctx, url, accessToken, &sheet); err != nil {
		return nil, fmt.Errorf("skills: %w", err)
	}
	return &sheet, nil
}

// GetCharacterLocation fetches a character's current location (system/station).
func (c *Client) GetCharacterLocation(ctx context.Context, characterID int64, accessToken string) (*CharacterLocation, error) {
	url := fmt.Sprintf("%s/characters/%d/location/?datasource=tranquility", c.baseURL, characterID)
	var loc CharacterLocation
	if err := c.AuthGetJSON(ctx, url, accessToken, &loc); err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}
	return &loc, nil
}

// RegionOfSystem resolves system → constellation → region. Results never
// change, so they are cached without expiry.
func (c *Client) RegionOfSystem(ctx context.Context, systemID int32) (int32, error) {
	key := "region-of:" + strconv.Itoa(int(systemID))
	if v, ok := c.names.Get(key); ok {
		return v.(int32), nil
	}

	var sys struct {
		ConstellationID int32 `json:"constellation_id"`
	}
	url := fmt.Sprintf("%s/universe/systems/%d/?datasource=tranquility", c.baseURL, systemID)
	if err := c.GetJSON(ctx, url, &sys); err != nil {
		return 0, fmt.Errorf("system %d: %w", systemID, err)
	}

	var con struct {
		RegionID int32 `json:"region_id"`
	}
	url = fmt.Sprintf("%s/universe/constellations/%d/?datasource=tranquility", c.baseURL, sys.ConstellationID)
	if err := c.GetJSON(ctx, url, &con); err != nil {
		return 0, fmt.Errorf("constellation %d: %w", sys.ConstellationID, err)
	}

	c.names.Set(key, con.RegionID, cache.NoExpiration)
	return con.RegionID, nil
}
