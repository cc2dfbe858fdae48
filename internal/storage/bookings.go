package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/accountax/marketd/internal/models"
)

const bookingColumns = `id, client, service_provider, request_id, offer_id, proposal, status, payment_status, deadline, start_date, timeline, history_logs, risk_score, warnings, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (models.Booking, error) {
	var b models.Booking
	var proposal, timeline, historyLogs, warnings []byte
	var startDate sql.NullTime
	err := row.Scan(&b.ID, &b.Client, &b.ServiceProvider, &b.RequestID, &b.OfferID,
		&proposal, &b.Status, &b.PaymentStatus, &b.Deadline, &startDate,
		&timeline, &historyLogs, &b.RiskScore, &warnings, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return models.Booking{}, err
	}
	if err := json.Unmarshal(proposal, &b.Proposal); err != nil {
		return models.Booking{}, err
	}
	if err := json.Unmarshal(timeline, &b.Timeline); err != nil {
		return models.Booking{}, err
	}
	if err := json.Unmarshal(historyLogs, &b.HistoryLogs); err != nil {
		return models.Booking{}, err
	}
	if err := json.Unmarshal(warnings, &b.Warnings); err != nil {
		return models.Booking{}, err
	}
	if startDate.Valid {
		t := startDate.Time
		b.StartDate = &t
	}
	return b, nil
}

func bookingJSON(b models.Booking) (proposal, timeline, historyLogs, warnings []byte, err error) {
	if proposal, err = json.Marshal(b.Proposal); err != nil {
		return
	}
	if timeline, err = json.Marshal(b.Timeline); err != nil {
		return
	}
	if historyLogs, err = json.Marshal(b.HistoryLogs); err != nil {
		return
	}
	warnings, err = json.Marshal(b.Warnings)
	return
}

func (p *Postgres) InsertBooking(ctx context.Context, b models.Booking) error {
	proposal, timeline, historyLogs, warnings, err := bookingJSON(b)
	if err != nil {
		return err
	}
	var startDate any
	if b.StartDate != nil {
		startDate = *b.StartDate
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`, b.ID, b.Client, b.ServiceProvider, b.RequestID, b.OfferID, proposal,
		b.Status, b.PaymentStatus, b.Deadline, startDate, timeline, historyLogs,
		b.RiskScore, warnings, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (p *Postgres) BookingByID(ctx context.Context, id uuid.UUID) (models.Booking, error) {
	b, err := scanBooking(p.db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE id = $1;
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, ErrNotFound
		}
		return models.Booking{}, err
	}
	return b, nil
}

func (p *Postgres) BookingsByClient(ctx context.Context, client uuid.UUID) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE client = $1 ORDER BY created_at DESC;
	`, client)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) BookingsByProvider(ctx context.Context, provider uuid.UUID) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE service_provider = $1 ORDER BY created_at DESC;
	`, provider)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (p *Postgres) BookingsByStatus(ctx context.Context, statuses ...models.BookingStatus) ([]models.Booking, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE status = ANY($1) ORDER BY created_at DESC;
	`, pq.Array(names))
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (p *Postgres) HasActiveBooking(ctx context.Context, requestID uuid.UUID) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings WHERE request_id = $1 AND status <> $2
		);
	`, requestID, models.BookingCanceled).Scan(&exists)
	return exists, err
}

func (p *Postgres) UpdateBooking(ctx context.Context, b models.Booking) error {
	proposal, timeline, historyLogs, warnings, err := bookingJSON(b)
	if err != nil {
		return err
	}
	var startDate any
	if b.StartDate != nil {
		startDate = *b.StartDate
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings SET proposal = $1, status = $2, payment_status = $3, deadline = $4,
			start_date = $5, timeline = $6, history_logs = $7, risk_score = $8, warnings = $9,
			updated_at = $10
		WHERE id = $11;
	`, proposal, b.Status, b.PaymentStatus, b.Deadline, startDate, timeline,
		historyLogs, b.RiskScore, warnings, time.Now().UTC(), b.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
