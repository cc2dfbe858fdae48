package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/accountax/marketd/internal/models"
)

func (p *Postgres) CreateUser(ctx context.Context, u models.User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at FROM users WHERE email = $1;
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

func (p *Postgres) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	var u models.User
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at FROM users WHERE id = $1;
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}
