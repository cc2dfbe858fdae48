package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/accountax/marketd/internal/models"
)

const proposalColumns = `id, request_id, service_provider, price, duration_days, notes, attachments, status, rejection_reason, created_at, updated_at`

func scanProposal(row interface{ Scan(...any) error }) (models.Proposal, error) {
	var p models.Proposal
	var attachments []byte
	err := row.Scan(&p.ID, &p.RequestID, &p.ServiceProvider, &p.Price, &p.DurationDays,
		&p.Notes, &attachments, &p.Status, &p.RejectionReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return models.Proposal{}, err
	}
	if err := json.Unmarshal(attachments, &p.Attachments); err != nil {
		return models.Proposal{}, err
	}
	return p, nil
}

func (p *Postgres) InsertProposal(ctx context.Context, prop models.Proposal) error {
	attachments, err := json.Marshal(prop.Attachments)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO proposals (`+proposalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`, prop.ID, prop.RequestID, prop.ServiceProvider, prop.Price, prop.DurationDays,
		prop.Notes, attachments, prop.Status, prop.RejectionReason, prop.CreatedAt, prop.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (p *Postgres) ProposalByID(ctx context.Context, id uuid.UUID) (models.Proposal, error) {
	prop, err := scanProposal(p.db.QueryRowContext(ctx, `
		SELECT `+proposalColumns+` FROM proposals WHERE id = $1;
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Proposal{}, ErrNotFound
		}
		return models.Proposal{}, err
	}
	return prop, nil
}

func (p *Postgres) ProposalsByProvider(ctx context.Context, provider uuid.UUID) ([]models.Proposal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+proposalColumns+` FROM proposals WHERE service_provider = $1 ORDER BY created_at DESC;
	`, provider)
	if err != nil {
		return nil, err
	}
	return collectProposals(rows)
}

func (p *Postgres) ProposalsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Proposal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+proposalColumns+` FROM proposals WHERE request_id = $1 ORDER BY created_at DESC;
	`, requestID)
	if err != nil {
		return nil, err
	}
	return collectProposals(rows)
}

func collectProposals(rows *sql.Rows) ([]models.Proposal, error) {
	defer rows.Close()
	var proposals []models.Proposal
	for rows.Next() {
		prop, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, prop)
	}
	return proposals, rows.Err()
}

func (p *Postgres) HasOpenProposal(ctx context.Context, requestID, provider uuid.UUID) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM proposals
			WHERE request_id = $1 AND service_provider = $2
			AND status NOT IN ('canceled', 'rejected')
		);
	`, requestID, provider).Scan(&exists)
	return exists, err
}

func (p *Postgres) UpdateProposal(ctx context.Context, prop models.Proposal) error {
	attachments, err := json.Marshal(prop.Attachments)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE proposals SET price = $1, duration_days = $2, notes = $3, attachments = $4, updated_at = $5
		WHERE id = $6;
	`, prop.Price, prop.DurationDays, prop.Notes, attachments, time.Now().UTC(), prop.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetProposalStatus(ctx context.Context, id uuid.UUID, status models.ProposalStatus, reason string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE proposals SET status = $1, rejection_reason = $2, updated_at = $3 WHERE id = $4;
	`, status, reason, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RejectPendingSiblings(ctx context.Context, requestID, winner uuid.UUID) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE proposals SET status = $1, rejection_reason = $2, updated_at = $3
		WHERE request_id = $4 AND id <> $5 AND status = $6;
	`, models.ProposalRejected, "another proposal was accepted", time.Now().UTC(),
		requestID, winner, models.ProposalPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
