package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"turfbook/internal/models"

	sq "github.com/Masterminds/squirrel"
)

const blockColumns = `id, venue_id, start_date, end_date, ranges, reason, created_at`

func (db *DB) CreateBlock(ctx context.Context, b *models.Block) error {
	ranges, err := json.Marshal(b.Ranges)
	if err != nil {
		return fmt.Errorf("encode block ranges: %w", err)
	}
	if b.Ranges == nil {
		ranges = []byte("[]")
	}

	now := utcNow()
	result, err := db.ExecContext(ctx,
		`INSERT INTO blocks (venue_id, start_date, end_date, ranges, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.VenueID, formatDate(b.StartDate), formatDate(b.LastDate()), string(ranges), b.Reason, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	return nil
}

func (db *DB) DeleteBlock(ctx context.Context, venueID, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ? AND venue_id = ?`, id, venueID)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	return nil
}

// BlocksForDate возвращает блокировки площадки, чей диапазон дат (включительно) покрывает date.
func (db *DB) BlocksForDate(ctx context.Context, venueID int64, date time.Time) ([]*models.Block, error) {
	return db.ListBlocks(ctx, venueID, date, date)
}

// ListBlocks возвращает блокировки, пересекающие [from, to].
func (db *DB) ListBlocks(ctx context.Context, venueID int64, from, to time.Time) ([]*models.Block, error) {
	qb := sq.Select(blockColumns).
		From("blocks").
		Where(sq.Eq{"venue_id": venueID}).
		Where(sq.LtOrEq{"start_date": formatDate(to)}).
		Where(sq.GtOrEq{"end_date": formatDate(from)}).
		OrderBy("start_date ASC", "id ASC")

	rows, err := db.selectQuery(ctx, qb)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*models.Block
	for rows.Next() {
		var (
			b                models.Block
			startStr, endStr string
			ranges           string
		)
		if err := rows.Scan(&b.ID, &b.VenueID, &startStr, &endStr, &ranges, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		if b.StartDate, err = parseDate(startStr); err != nil {
			return nil, fmt.Errorf("failed to parse block start %s: %w", startStr, err)
		}
		end, err := parseDate(endStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse block end %s: %w", endStr, err)
		}
		if !end.Equal(b.StartDate) {
			b.EndDate = &end
		}
		if err := json.Unmarshal([]byte(ranges), &b.Ranges); err != nil {
			db.logger.Warn().Err(err).Int64("block_id", b.ID).Msg("skipping block with malformed ranges")
			continue
		}
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}
