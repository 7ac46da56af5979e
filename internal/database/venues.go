package database

import (
	"context"
	"encoding/json"
	"fmt"

	"turfbook/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

const venueColumns = `id, name, location, sport, description, open_time, close_time, slot_minutes,
	partial_last_slot, price_per_hour, weekday_pricing, weekend_pricing, is_active, created_at, updated_at`

func (db *DB) CreateVenue(ctx context.Context, v *models.Venue) error {
	weekday, weekend, err := encodePricing(v)
	if err != nil {
		return err
	}

	query := `INSERT INTO venues (
				name, location, sport, description, open_time, close_time, slot_minutes,
				partial_last_slot, price_per_hour, weekday_pricing, weekend_pricing, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := utcNow()
	result, err := db.ExecContext(ctx, query,
		v.Name, v.Location, v.Sport, v.Description,
		v.OpenTime, v.CloseTime, v.SlotMinutes, v.PartialLastSlot,
		nullPrice(v.PricePerHour), weekday, weekend, v.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create venue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	v.ID = id
	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

func (db *DB) UpdateVenue(ctx context.Context, v *models.Venue) error {
	weekday, weekend, err := encodePricing(v)
	if err != nil {
		return err
	}

	query := `UPDATE venues SET name = ?, location = ?, sport = ?, description = ?, open_time = ?, close_time = ?,
				slot_minutes = ?, partial_last_slot = ?, price_per_hour = ?, weekday_pricing = ?, weekend_pricing = ?,
				is_active = ?, updated_at = ?
			  WHERE id = ?`
	now := utcNow()
	result, err := db.ExecContext(ctx, query,
		v.Name, v.Location, v.Sport, v.Description,
		v.OpenTime, v.CloseTime, v.SlotMinutes, v.PartialLastSlot,
		nullPrice(v.PricePerHour), weekday, weekend, v.IsActive, now, v.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update venue: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("venue %d: %w", v.ID, ErrNotFound)
	}
	v.UpdatedAt = now
	return nil
}

func (db *DB) GetVenue(ctx context.Context, id int64) (*models.Venue, error) {
	row := db.QueryRowContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = ?`, id)
	v, err := scanVenue(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("venue %d", id))
	}
	return v, nil
}

func (db *DB) ListVenues(ctx context.Context, activeOnly bool) ([]*models.Venue, error) {
	qb := sq.Select(venueColumns).From("venues").OrderBy("name ASC", "id ASC")
	if activeOnly {
		qb = qb.Where(sq.Eq{"is_active": true})
	}

	rows, err := db.selectQuery(ctx, qb)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	defer rows.Close()

	var venues []*models.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

func scanVenue(row rowScanner) (*models.Venue, error) {
	var (
		v                models.Venue
		price            decimal.NullDecimal
		weekday, weekend string
	)
	err := row.Scan(
		&v.ID, &v.Name, &v.Location, &v.Sport, &v.Description, &v.OpenTime, &v.CloseTime, &v.SlotMinutes,
		&v.PartialLastSlot, &price, &weekday, &weekend, &v.IsActive, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Decimal
		v.PricePerHour = &p
	}
	if err := json.Unmarshal([]byte(weekday), &v.WeekdayPricing); err != nil {
		return nil, fmt.Errorf("decode weekday pricing of venue %d: %w", v.ID, err)
	}
	if err := json.Unmarshal([]byte(weekend), &v.WeekendPricing); err != nil {
		return nil, fmt.Errorf("decode weekend pricing of venue %d: %w", v.ID, err)
	}
	return &v, nil
}

func encodePricing(v *models.Venue) (string, string, error) {
	weekday, err := json.Marshal(v.WeekdayPricing)
	if err != nil {
		return "", "", fmt.Errorf("encode weekday pricing: %w", err)
	}
	weekend, err := json.Marshal(v.WeekendPricing)
	if err != nil {
		return "", "", fmt.Errorf("encode weekend pricing: %w", err)
	}
	return string(weekday), string(weekend), nil
}

func nullPrice(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *p, Valid: true}
}
