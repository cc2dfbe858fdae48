package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleClient          Role = "client"
	RoleServiceProvider Role = "serviceProvider"
	RoleAdmin           Role = "admin"
)

func ValidRole(r Role) bool {
	return r == RoleClient || r == RoleServiceProvider || r == RoleAdmin
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	Owner     uuid.UUID       `json:"owner"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type TransactionType string

const (
	TransactionDeposit TransactionType = "deposit"
	TransactionHold    TransactionType = "hold"
	TransactionRelease TransactionType = "release"
	TransactionRefund  TransactionType = "refund"
	TransactionPayment TransactionType = "payment"
)

// Credit reports whether the transaction type increases the wallet balance.
// Hold and payment are debits; everything else is a credit.
func (t TransactionType) Credit() bool {
	return t == TransactionDeposit || t == TransactionRelease || t == TransactionRefund
}

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
	TransactionFailed    TransactionStatus = "failed"
)

// Correlation ties a transaction back to the entities that caused it.
type Correlation struct {
	RequestID  *uuid.UUID `json:"requestId,omitempty"`
	ProposalID *uuid.UUID `json:"proposalId,omitempty"`
	BookingID  *uuid.UUID `json:"bookingId,omitempty"`
}

type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	WalletID    uuid.UUID         `json:"wallet"`
	Type        TransactionType   `json:"type"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	Data        Correlation       `json:"data"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestSubmitted  RequestStatus = "submitted"
	RequestOpen       RequestStatus = "open"
	RequestInProgress RequestStatus = "in-progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCanceled   RequestStatus = "canceled"
	RequestRejected   RequestStatus = "rejected"
)

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

type Request struct {
	ID              uuid.UUID       `json:"id"`
	Client          uuid.UUID       `json:"client"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Attachments     []Attachment    `json:"attachments"`
	Budget          decimal.Decimal `json:"budget"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
	Status          RequestStatus   `json:"status"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Proposable reports whether providers may still bid on the request.
func (r Request) Proposable() bool {
	return r.Status == RequestSubmitted || r.Status == RequestOpen
}

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalActive   ProposalStatus = "active"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
	ProposalCanceled ProposalStatus = "canceled"
)

type Proposal struct {
	ID              uuid.UUID       `json:"id"`
	RequestID       uuid.UUID       `json:"request"`
	ServiceProvider uuid.UUID       `json:"serviceProvider"`
	Price           decimal.Decimal `json:"price"`
	DurationDays    int             `json:"durationDays"`
	Notes           string          `json:"notes"`
	Attachments     []Attachment    `json:"attachments"`
	Status          ProposalStatus  `json:"status"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Open reports whether the proposal still counts against the one-bid-per-request
// rule, i.e. it has not been withdrawn or turned down.
func (p Proposal) Open() bool {
	return p.Status != ProposalCanceled && p.Status != ProposalRejected
}

type BookingStatus string

const (
	BookingPending       BookingStatus = "pending"
	BookingActive        BookingStatus = "active"
	BookingInProgress    BookingStatus = "in-progress"
	BookingPendingReview BookingStatus = "pending-review"
	BookingSuspended     BookingStatus = "suspended"
	BookingCompleted     BookingStatus = "completed"
	BookingCanceled      BookingStatus = "canceled"
)

func ValidBookingStatus(s BookingStatus) bool {
	switch s {
	case BookingPending, BookingActive, BookingInProgress, BookingPendingReview,
		BookingSuspended, BookingCompleted, BookingCanceled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentHeld     PaymentStatus = "held"
	PaymentReleased PaymentStatus = "released"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// ProposalSnapshot freezes the accepted proposal's terms at acceptance time.
// Later edits to the proposal never change an existing booking.
type ProposalSnapshot struct {
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"durationDays"`
	Notes        string          `json:"notes"`
}

type TimelineEvent struct {
	Event       string    `json:"event"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

type HistoryLog struct {
	Action    string    `json:"action"`
	AdminID   uuid.UUID `json:"adminId"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

type WarningTarget string

const (
	WarnClient   WarningTarget = "client"
	WarnProvider WarningTarget = "provider"
)

type Warning struct {
	Target    WarningTarget `json:"target"`
	Message   string        `json:"message"`
	AdminID   uuid.UUID     `json:"adminId"`
	CreatedAt time.Time     `json:"createdAt"`
}

type Booking struct {
	ID              uuid.UUID        `json:"id"`
	Client          uuid.UUID        `json:"client"`
	ServiceProvider uuid.UUID        `json:"serviceProvider"`
	RequestID       uuid.UUID        `json:"request"`
	OfferID         uuid.UUID        `json:"offerId"`
	Proposal        ProposalSnapshot `json:"proposal"`
	Status          BookingStatus    `json:"status"`
	PaymentStatus   PaymentStatus    `json:"paymentStatus"`
	Deadline        time.Time        `json:"deadline"`
	StartDate       *time.Time       `json:"startDate,omitempty"`
	Timeline        []TimelineEvent  `json:"timeline"`
	HistoryLogs     []HistoryLog     `json:"historyLogs"`
	RiskScore       int              `json:"riskScore"`
	Warnings        []Warning        `json:"warnings"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}
