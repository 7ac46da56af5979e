package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"turfbook/internal/models"
	"turfbook/internal/slots"

	sq "github.com/Masterminds/squirrel"
)

const bookingColumns = `b.id, b.reference, b.venue_id, COALESCE(v.name, ''), b.date, b.start_minute, b.end_minute,
	b.customer_name, b.customer_email, b.customer_phone, b.amount, b.currency, b.status,
	b.payment_order_id, b.payment_id, b.refund_id, b.comment, b.created_at, b.updated_at, b.version`

func bookingSelect() sq.SelectBuilder {
	return sq.Select(bookingColumns).
		From("bookings b").
		LeftJoin("venues v ON v.id = b.venue_id")
}

// CreateBooking создает бронирование, повторно проверяя в той же транзакции,
// что его не перекрывает ни одна активная бронь площадки.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	conflict, err := overlapCount(ctx, tx, b.VenueID, b.Date, b.StartTime.Minutes(), b.EndTime().Minutes())
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if conflict > 0 {
		return ErrSlotTaken
	}

	if b.Status == "" {
		b.Status = models.StatusPending
	}

	query := `INSERT INTO bookings (
				reference, venue_id, date, start_minute, end_minute, customer_name, customer_email, customer_phone,
				amount, currency, status, payment_order_id, payment_id, refund_id, comment, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := utcNow()
	result, err := tx.ExecContext(ctx, query,
		b.Reference, b.VenueID, formatDate(b.Date), b.StartTime.Minutes(), b.EndTime().Minutes(),
		b.CustomerName, b.CustomerEmail, b.CustomerPhone,
		b.Amount, b.Currency, b.Status, b.PaymentOrderID, b.PaymentID, b.RefundID, b.Comment,
		now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

func overlapCount(ctx context.Context, tx *sql.Tx, venueID int64, date time.Time, start, end int) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("bookings").
		Where(sq.Eq{"venue_id": venueID, "date": formatDate(date), "status": models.ActiveStatuses}).
		Where(sq.Lt{"start_minute": end}).
		Where(sq.Gt{"end_minute": start}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return db.getBookingWhere(ctx, sq.Eq{"b.id": id}, fmt.Sprintf("booking %d", id))
}

func (db *DB) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return db.getBookingWhere(ctx, sq.Eq{"b.reference": reference}, fmt.Sprintf("booking %s", reference))
}

func (db *DB) GetBookingByPaymentOrder(ctx context.Context, orderID string) (*models.Booking, error) {
	return db.getBookingWhere(ctx, sq.Eq{"b.payment_order_id": orderID}, fmt.Sprintf("booking for order %s", orderID))
}

func (db *DB) getBookingWhere(ctx context.Context, where sq.Eq, what string) (*models.Booking, error) {
	query, args, err := bookingSelect().Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	b, err := scanBooking(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, what)
	}
	return b, nil
}

// ActiveBookings возвращает брони площадки на дату, которые еще занимают слоты.
func (db *DB) ActiveBookings(ctx context.Context, venueID int64, date time.Time) ([]*models.Booking, error) {
	return db.ListBookings(ctx, models.BookingFilter{
		VenueID:  venueID,
		From:     &date,
		To:       &date,
		Statuses: models.ActiveStatuses,
		Limit:    -1,
	})
}

func (db *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	qb := bookingSelect().OrderBy("b.date ASC", "b.start_minute ASC", "b.id ASC")
	if f.VenueID != 0 {
		qb = qb.Where(sq.Eq{"b.venue_id": f.VenueID})
	}
	if f.From != nil {
		qb = qb.Where(sq.GtOrEq{"b.date": formatDate(*f.From)})
	}
	if f.To != nil {
		qb = qb.Where(sq.LtOrEq{"b.date": formatDate(*f.To)})
	}
	if len(f.Statuses) > 0 {
		qb = qb.Where(sq.Eq{"b.status": f.Statuses})
	}
	if f.CustomerEmail != "" {
		qb = qb.Where(sq.Eq{"b.customer_email": f.CustomerEmail})
	}

	switch {
	case f.Limit < 0:
	case f.Limit == 0:
		qb = qb.Limit(models.DefaultListLimit)
	case f.Limit > models.MaxListLimit:
		qb = qb.Limit(models.MaxListLimit)
	default:
		qb = qb.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}

	rows, err := db.selectQuery(ctx, qb)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// UpdateBookingStatusWithVersion переводит бронь в status, если ее версия все еще fromVersion.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, utcNow(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// SetPaymentOrder сохраняет заказ платежного шлюза для ожидающей брони.
func (db *DB) SetPaymentOrder(ctx context.Context, id int64, orderID string) error {
	query := `UPDATE bookings SET payment_order_id = ?, version = version + 1, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, orderID, utcNow(), id)
	if err != nil {
		return fmt.Errorf("failed to set payment order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return nil
}

// ConfirmBooking подтверждает ожидающую бронь. Для уже подтвержденной или завершенной
// брони возвращает false без ошибки: вебхук шлюза и опрос клиента могут прийти одновременно.
func (db *DB) ConfirmBooking(ctx context.Context, id int64, paymentID string) (bool, error) {
	query := `UPDATE bookings SET status = ?, payment_id = ?, version = version + 1, updated_at = ?
			  WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, models.StatusConfirmed, paymentID, utcNow(), id, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 1 {
		return true, nil
	}

	var status string
	err = db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return false, notFound(err, fmt.Sprintf("booking %d", id))
	}
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		return false, nil
	default:
		return false, fmt.Errorf("confirm booking in status %s: %w", status, ErrInvalidTransition)
	}
}

// MarkRefunded сохраняет id возврата и переводит бронь в refunded при версии fromVersion.
func (db *DB) MarkRefunded(ctx context.Context, id, fromVersion int64, refundID string) error {
	query := `UPDATE bookings SET status = ?, refund_id = ?, version = version + 1, updated_at = ?
			  WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, models.StatusRefunded, refundID, utcNow(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to mark booking refunded: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ExpireStalePending переводит в expired ожидающие брони, созданные до cutoff, и возвращает их.
func (db *DB) ExpireStalePending(ctx context.Context, cutoff time.Time) ([]*models.Booking, error) {
	stale, err := db.ListBookings(ctx, models.BookingFilter{Statuses: []string{models.StatusPending}, Limit: -1})
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := utcNow()
	var expired []*models.Booking
	for _, b := range stale {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND status = ?`,
			models.StatusExpired, now, b.ID, models.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to expire booking %d: %w", b.ID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 1 {
			b.Status = models.StatusExpired
			b.Version++
			b.UpdatedAt = now
			expired = append(expired, b)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry: %w", err)
	}
	return expired, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		dateStr    string
		start, end int
	)
	err := row.Scan(
		&b.ID, &b.Reference, &b.VenueID, &b.VenueName, &dateStr, &start, &end,
		&b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.Amount, &b.Currency, &b.Status,
		&b.PaymentOrderID, &b.PaymentID, &b.RefundID, &b.Comment, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.Date, err = parseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	b.StartTime = slots.Clock(start)
	b.DurationMinutes = end - start
	return &b, nil
}
