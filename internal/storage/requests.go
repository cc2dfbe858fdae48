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

const requestColumns = `id, client, title, description, attachments, budget, deadline, status, rejection_reason, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (models.Request, error) {
	var r models.Request
	var attachments []byte
	var deadline sql.NullTime
	err := row.Scan(&r.ID, &r.Client, &r.Title, &r.Description, &attachments, &r.Budget,
		&deadline, &r.Status, &r.RejectionReason, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Request{}, err
	}
	if err := json.Unmarshal(attachments, &r.Attachments); err != nil {
		return models.Request{}, err
	}
	if deadline.Valid {
		t := deadline.Time
		r.Deadline = &t
	}
	return r, nil
}

func (p *Postgres) InsertRequest(ctx context.Context, r models.Request) error {
	attachments, err := json.Marshal(r.Attachments)
	if err != nil {
		return err
	}
	var deadline any
	if r.Deadline != nil {
		deadline = *r.Deadline
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`, r.ID, r.Client, r.Title, r.Description, attachments, r.Budget, deadline,
		r.Status, r.RejectionReason, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *Postgres) RequestByID(ctx context.Context, id uuid.UUID) (models.Request, error) {
	r, err := scanRequest(p.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE id = $1;
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Request{}, ErrNotFound
		}
		return models.Request{}, err
	}
	return r, nil
}

func (p *Postgres) RequestsByClient(ctx context.Context, client uuid.UUID) ([]models.Request, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE client = $1 ORDER BY created_at DESC;
	`, client)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (p *Postgres) RequestsByStatus(ctx context.Context, statuses ...models.RequestStatus) ([]models.Request, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE status = ANY($1) ORDER BY created_at DESC;
	`, pq.Array(names))
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func collectRequests(rows *sql.Rows) ([]models.Request, error) {
	defer rows.Close()
	var requests []models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (p *Postgres) UpdateRequest(ctx context.Context, r models.Request) error {
	attachments, err := json.Marshal(r.Attachments)
	if err != nil {
		return err
	}
	var deadline any
	if r.Deadline != nil {
		deadline = *r.Deadline
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE requests SET title = $1, description = $2, attachments = $3, budget = $4,
			deadline = $5, status = $6, rejection_reason = $7, updated_at = $8
		WHERE id = $9;
	`, r.Title, r.Description, attachments, r.Budget, deadline, r.Status,
		r.RejectionReason, time.Now().UTC(), r.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM requests WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, reason string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE requests SET status = $1, rejection_reason = $2, updated_at = $3 WHERE id = $4;
	`, status, reason, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
