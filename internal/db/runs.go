package db

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"eve-dealfinder/internal/engine"
)

// RunRecord is one recorded discovery run.
type RunRecord struct {
	ID          int64   `json:"id"`
	Timestamp   string  `json:"timestamp"`
	CharacterID int64   `json:"character_id"`
	RegionID    int32   `json:"region_id"`
	LocationID  int64   `json:"location_id"`
	Wallet      float64 `json:"wallet"`
	Count       int     `json:"count"`
	TopProfit   float64 `json:"top_profit"`
	TotalProfit float64 `json:"total_profit"`
	DurationMs  int64   `json:"duration_ms"`
}

// InsertRun records a finished run and its deals in rank order, returning
// the run ID.
func (d *DB) InsertRun(characterID int64, r *engine.RunReport) (int64, error) {
	var top float64
	if len(r.Deals) > 0 {
		top = r.Deals[0].Profit()
	}
	total := lo.SumBy(r.Deals, func(deal engine.Deal) float64 { return deal.Profit() })

	tx, err := d.sql.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO discovery_runs
			(timestamp, character_id, region_id, location_id, wallet, count, top_profit, total_profit, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StartedAt.UTC().Format(time.RFC3339), characterID, r.Location.RegionID, r.Location.MarketLocationID(),
		r.Wallet, len(r.Deals), top, total, r.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert run id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO deal_results (run_id, rank, type_id, type_name, volume, buy_price, sell_price, fees)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for i, deal := range r.Deals {
		if _, err := stmt.Exec(id, i, deal.Type.TypeID, deal.Type.TypeName, deal.Volume, deal.BuyPrice, deal.SellPrice, deal.Fees); err != nil {
			return 0, fmt.Errorf("insert deal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetRuns returns the last N runs (newest first).
func (d *DB) GetRuns(limit int) []RunRecord {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.Query(`
		SELECT id, timestamp, character_id, region_id, location_id, wallet, count, top_profit, total_profit, duration_ms
		FROM discovery_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return []RunRecord{}
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.CharacterID, &r.RegionID, &r.LocationID,
			&r.Wallet, &r.Count, &r.TopProfit, &r.TotalProfit, &r.DurationMs); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records
}

// GetRun returns a single run, or nil.
func (d *DB) GetRun(id int64) *RunRecord {
	var r RunRecord
	err := d.sql.QueryRow(`
		SELECT id, timestamp, character_id, region_id, location_id, wallet, count, top_profit, total_profit, duration_ms
		FROM discovery_runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Timestamp, &r.CharacterID, &r.RegionID, &r.LocationID,
			&r.Wallet, &r.Count, &r.TopProfit, &r.TotalProfit, &r.DurationMs)
	if err != nil {
		return nil
	}
	return &r
}

// GetRunDeals returns a run's deals in their recorded rank.
func (d *DB) GetRunDeals(runID int64) []engine.Deal {
	rows, err := d.sql.Query(`
		SELECT type_id, type_name, volume, buy_price, sell_price, fees
		FROM deal_results WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return []engine.Deal{}
	}
	defer rows.Close()

	deals := []engine.Deal{}
	for rows.Next() {
		var deal engine.Deal
		if err := rows.Scan(&deal.Type.TypeID, &deal.Type.TypeName, &deal.Volume, &deal.BuyPrice, &deal.SellPrice, &deal.Fees); err != nil {
			continue
		}
		deals = append(deals, deal)
	}
	return deals
}

// ClearRuns deletes runs older than the given number of days with their deals.
func (d *DB) ClearRuns(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(time.RFC3339)

	tx, err := d.sql.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM deal_results
		WHERE run_id IN (SELECT id FROM discovery_runs WHERE timestamp < ?)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.Exec("DELETE FROM discovery_runs WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
