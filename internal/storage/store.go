package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Store is the persistence boundary shared by the Postgres implementation and
// the in-memory one. Every method is safe for concurrent use. WithinTx runs fn
// against a transactional view of the store: either every mutation fn makes is
// visible afterwards, or none are.
type Store interface {
	WithinTx(ctx context.Context, fn func(Store) error) error

	CreateUser(ctx context.Context, u models.User) error
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)

	// EnsureWallet lazily creates the owner's wallet with a zero balance.
	// Concurrent calls for the same owner yield the same single wallet.
	EnsureWallet(ctx context.Context, owner uuid.UUID) (models.Wallet, error)
	WalletByOwner(ctx context.Context, owner uuid.UUID) (models.Wallet, error)
	CreditBalance(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) (models.Wallet, error)
	// DebitBalance atomically decrements the balance only when it covers
	// amount. ok is false when the balance was too low; no partial write
	// happens in that case.
	DebitBalance(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) (wallet models.Wallet, ok bool, err error)
	InsertTransaction(ctx context.Context, tx models.Transaction) error
	TransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Transaction, error)

	InsertRequest(ctx context.Context, r models.Request) error
	RequestByID(ctx context.Context, id uuid.UUID) (models.Request, error)
	RequestsByClient(ctx context.Context, client uuid.UUID) ([]models.Request, error)
	RequestsByStatus(ctx context.Context, statuses ...models.RequestStatus) ([]models.Request, error)
	UpdateRequest(ctx context.Context, r models.Request) error
	DeleteRequest(ctx context.Context, id uuid.UUID) error
	SetRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, reason string) error

	InsertProposal(ctx context.Context, p models.Proposal) error
	ProposalByID(ctx context.Context, id uuid.UUID) (models.Proposal, error)
	ProposalsByProvider(ctx context.Context, provider uuid.UUID) ([]models.Proposal, error)
	ProposalsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Proposal, error)
	HasOpenProposal(ctx context.Context, requestID, provider uuid.UUID) (bool, error)
	UpdateProposal(ctx context.Context, p models.Proposal) error
	SetProposalStatus(ctx context.Context, id uuid.UUID, status models.ProposalStatus, reason string) error
	// RejectPendingSiblings bulk-rejects pending proposals on the request,
	// never touching the winner. Idempotent.
	RejectPendingSiblings(ctx context.Context, requestID, winner uuid.UUID) (int64, error)

	// InsertBooking returns ErrDuplicate when a non-canceled booking for the
	// same request already exists.
	InsertBooking(ctx context.Context, b models.Booking) error
	BookingByID(ctx context.Context, id uuid.UUID) (models.Booking, error)
	BookingsByClient(ctx context.Context, client uuid.UUID) ([]models.Booking, error)
	BookingsByProvider(ctx context.Context, provider uuid.UUID) ([]models.Booking, error)
	BookingsByStatus(ctx context.Context, statuses ...models.BookingStatus) ([]models.Booking, error)
	HasActiveBooking(ctx context.Context, requestID uuid.UUID) (bool, error)
	UpdateBooking(ctx context.Context, b models.Booking) error
}
