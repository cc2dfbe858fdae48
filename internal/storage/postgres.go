package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/logger"
)

var (
	ErrConnectionFailed    = errors.New("db connection failed")
	ErrCreatingTableFailed = errors.New("creating table failed")
)

// queryer is satisfied by both *sql.DB and *sql.Tx so the same query methods
// serve plain calls and calls inside WithinTx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Postgres struct {
	db   queryer
	root *sql.DB // nil when this view is already transaction-scoped
}

func Init(databaseURI string) (*Postgres, error) {
	if databaseURI == "" {
		return nil, ErrConnectionFailed
	}

	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		logger.Log.Error("Error opening database connection", zap.Error(err))
		return nil, ErrConnectionFailed
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id UUID PRIMARY KEY NOT NULL,
			owner UUID UNIQUE NOT NULL REFERENCES users(id),
			balance DECIMAL(12, 2) NOT NULL DEFAULT 0.00 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY NOT NULL,
			wallet_id UUID NOT NULL REFERENCES wallets(id),
			type VARCHAR(20) NOT NULL,
			amount DECIMAL(12, 2) NOT NULL CHECK (amount > 0),
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			data JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS requests (
			id UUID PRIMARY KEY NOT NULL,
			client UUID NOT NULL REFERENCES users(id),
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			attachments JSONB NOT NULL DEFAULT '[]',
			budget DECIMAL(12, 2) NOT NULL DEFAULT 0.00,
			deadline TIMESTAMPTZ,
			status VARCHAR(20) NOT NULL,
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS proposals (
			id UUID PRIMARY KEY NOT NULL,
			request_id UUID NOT NULL REFERENCES requests(id),
			service_provider UUID NOT NULL REFERENCES users(id),
			price DECIMAL(12, 2) NOT NULL CHECK (price >= 0),
			duration_days INT NOT NULL CHECK (duration_days >= 1),
			notes TEXT NOT NULL DEFAULT '',
			attachments JSONB NOT NULL DEFAULT '[]',
			status VARCHAR(20) NOT NULL,
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY NOT NULL,
			client UUID NOT NULL REFERENCES users(id),
			service_provider UUID NOT NULL REFERENCES users(id),
			request_id UUID NOT NULL REFERENCES requests(id),
			offer_id UUID NOT NULL REFERENCES proposals(id),
			proposal JSONB NOT NULL,
			status VARCHAR(20) NOT NULL,
			payment_status VARCHAR(20) NOT NULL,
			deadline TIMESTAMPTZ NOT NULL,
			start_date TIMESTAMPTZ,
			timeline JSONB NOT NULL DEFAULT '[]',
			history_logs JSONB NOT NULL DEFAULT '[]',
			risk_score INT NOT NULL DEFAULT 0,
			warnings JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS proposals_request_idx ON proposals (request_id);`,
		// One open bid per provider per request.
		`CREATE UNIQUE INDEX IF NOT EXISTS proposals_one_open_per_provider
			ON proposals (request_id, service_provider)
			WHERE status NOT IN ('canceled', 'rejected');`,
		// At most one non-canceled booking per request, enforced in the same
		// atomic unit as the insert.
		`CREATE UNIQUE INDEX IF NOT EXISTS bookings_one_active_per_request
			ON bookings (request_id)
			WHERE status <> 'canceled';`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			logger.Log.Error("Error creating table", zap.Error(err))
			return nil, ErrCreatingTableFailed
		}
	}

	return &Postgres{db: db, root: db}, nil
}

// WithinTx runs fn against a transaction-scoped view. Nested calls reuse the
// surrounding transaction.
func (p *Postgres) WithinTx(ctx context.Context, fn func(Store) error) error {
	if p.root == nil {
		return fn(p)
	}

	tx, err := p.root.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// Covers error returns and panics inside fn; a no-op after Commit.
	defer tx.Rollback()

	if err := fn(&Postgres{db: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
