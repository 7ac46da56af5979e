package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"turfbook/internal/models"
)

func (db *DB) CreatePeakRule(ctx context.Context, r *models.PeakHourRule) error {
	weekdays, err := json.Marshal(r.Weekdays)
	if err != nil {
		return fmt.Errorf("encode weekdays: %w", err)
	}
	if r.Weekdays == nil {
		weekdays = []byte("[]")
	}

	var date sql.NullString
	if r.Date != nil {
		date = sql.NullString{String: formatDate(*r.Date), Valid: true}
	}

	now := utcNow()
	result, err := db.ExecContext(ctx,
		`INSERT INTO peak_rules (venue_id, kind, weekdays, date, start_time, end_time, price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.VenueID, r.Kind, string(weekdays), date, r.StartTime, r.EndTime, r.Price, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create peak rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

func (db *DB) DeletePeakRule(ctx context.Context, venueID, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM peak_rules WHERE id = ? AND venue_id = ?`, id, venueID)
	if err != nil {
		return fmt.Errorf("failed to delete peak rule: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("peak rule %d: %w", id, ErrNotFound)
	}
	return nil
}

// PeakRulesForVenue возвращает все правила площадки, по дате фильтрует калькулятор цены.
func (db *DB) PeakRulesForVenue(ctx context.Context, venueID int64) ([]*models.PeakHourRule, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, venue_id, kind, weekdays, date, start_time, end_time, price, created_at
		 FROM peak_rules WHERE venue_id = ? ORDER BY start_time ASC, id ASC`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list peak rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.PeakHourRule
	for rows.Next() {
		var (
			r        models.PeakHourRule
			weekdays string
			date     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.VenueID, &r.Kind, &weekdays, &date, &r.StartTime, &r.EndTime, &r.Price, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan peak rule: %w", err)
		}
		if err := json.Unmarshal([]byte(weekdays), &r.Weekdays); err != nil {
			db.logger.Warn().Err(err).Int64("rule_id", r.ID).Msg("skipping peak rule with malformed weekdays")
			continue
		}
		if date.Valid {
			d, err := parseDate(date.String)
			if err != nil {
				db.logger.Warn().Err(err).Int64("rule_id", r.ID).Msg("skipping peak rule with malformed date")
				continue
			}
			r.Date = &d
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}
