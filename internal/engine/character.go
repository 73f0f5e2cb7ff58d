package engine

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"eve-dealfinder/internal/esi"
)

// CharacterData supplies the trading character's context. The finder only
// reads from it.
type CharacterData interface {
	Location(ctx context.Context) (Location, error)
	WalletBalance(ctx context.Context) (float64, error)
	Skills(ctx context.Context) (map[int32]int, error)
	OpenOrders(ctx context.Context) ([]OpenOrder, error)
}

// CharacterSource is the ESI surface ESICharacter reads from. *esi.Client
// satisfies it.
type CharacterSource interface {
	GetCharacterLocation(ctx context.Context, characterID int64, accessToken string) (*esi.CharacterLocation, error)
	GetWalletBalance(ctx context.Context, characterID int64, accessToken string) (float64, error)
	GetSkills(ctx context.Context, characterID int64, accessToken string) (*esi.SkillSheet, error)
	GetCharacterOrders(ctx context.Context, characterID int64, accessToken string) ([]esi.CharacterOrder, error)
	RegionOfSystem(ctx context.Context, systemID int32) (int32, error)
}

// ESICharacter reads CharacterData for one character from ESI.
type ESICharacter struct {
	Source      CharacterSource
	CharacterID int64
	Tokens      esi.TokenSource
}

func (c ESICharacter) token(ctx context.Context) (string, error) {
	if c.Tokens == nil {
		return "", fmt.Errorf("character %d: no token source: %w", c.CharacterID, esi.ErrUnauthorized)
	}
	return c.Tokens.AccessToken(ctx)
}

// Location resolves where the character is docked and the region around it.
func (c ESICharacter) Location(ctx context.Context) (Location, error) {
	token, err := c.token(ctx)
	if err != nil {
		return Location{}, err
	}
	loc, err := c.Source.GetCharacterLocation(ctx, c.CharacterID, token)
	if err != nil {
		return Location{}, err
	}
	region, err := c.Source.RegionOfSystem(ctx, loc.SolarSystemID)
	if err != nil {
		return Location{}, err
	}
	out := Location{
		RegionID:    region,
		SystemID:    loc.SolarSystemID,
		StationID:   loc.StationID,
		StructureID: loc.StructureID,
	}
	if out.StructureID == 0 && IsPlayerStructureLocationID(out.StationID) {
		out.StructureID, out.StationID = out.StationID, 0
	}
	return out, nil
}

// WalletBalance returns the character's ISK balance.
func (c ESICharacter) WalletBalance(ctx context.Context) (float64, error) {
	token, err := c.token(ctx)
	if err != nil {
		return 0, err
	}
	return c.Source.GetWalletBalance(ctx, c.CharacterID, token)
}

// Skills maps skill type ID to active level.
func (c ESICharacter) Skills(ctx context.Context) (map[int32]int, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	sheet, err := c.Source.GetSkills(ctx, c.CharacterID, token)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(sheet.Skills, func(s esi.SkillEntry) (int32, int) {
		return s.SkillID, s.ActiveLevel
	}), nil
}

// OpenOrders lists the character's active market orders.
func (c ESICharacter) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := c.Source.GetCharacterOrders(ctx, c.CharacterID, token)
	if err != nil {
		return nil, err
	}
	return lo.Map(orders, func(o esi.CharacterOrder, _ int) OpenOrder {
		return OpenOrder{TypeID: o.TypeID, LocationID: o.LocationID, RegionID: o.RegionID}
	}), nil
}
