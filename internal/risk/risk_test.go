package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/models"
)

func TestScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	base := models.Booking{
		Status:        models.BookingActive,
		PaymentStatus: models.PaymentHeld,
		Proposal:      models.ProposalSnapshot{Price: decimal.NewFromInt(1000)},
		CreatedAt:     now.Add(-10 * 24 * time.Hour),
		Deadline:      now.Add(10 * 24 * time.Hour),
	}

	tests := []struct {
		name    string
		mutate  func(b *models.Booking)
		want    int
		factors int
	}{
		{
			name:   "healthy booking",
			mutate: func(b *models.Booking) {},
			want:   0,
		},
		{
			name: "deadline passed",
			mutate: func(b *models.Booking) {
				b.Deadline = now.Add(-24 * time.Hour)
			},
			want:    25,
			factors: 1,
		},
		{
			name: "deadline approaching",
			mutate: func(b *models.Booking) {
				b.Deadline = now.Add(24 * time.Hour)
			},
			want:    12,
			factors: 1,
		},
		{
			name: "high value short engagement",
			mutate: func(b *models.Booking) {
				b.Proposal.Price = decimal.NewFromInt(6000)
				b.CreatedAt = now.Add(-24 * time.Hour)
				b.Deadline = now.Add(3 * 24 * time.Hour)
			},
			want:    10,
			factors: 1,
		},
		{
			name: "payment failed",
			mutate: func(b *models.Booking) {
				b.PaymentStatus = models.PaymentFailed
			},
			want:    15,
			factors: 1,
		},
		{
			name: "suspended",
			mutate: func(b *models.Booking) {
				b.Status = models.BookingSuspended
			},
			want:    30,
			factors: 1,
		},
		{
			name: "everything at once",
			mutate: func(b *models.Booking) {
				b.Deadline = now.Add(-24 * time.Hour)
				b.CreatedAt = now.Add(-3 * 24 * time.Hour)
				b.Proposal.Price = decimal.NewFromInt(9000)
				b.PaymentStatus = models.PaymentFailed
				b.Status = models.BookingSuspended
			},
			want:    80,
			factors: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := base
			tt.mutate(&b)
			score, factors := Score(b, now)
			if score != tt.want {
				t.Errorf("score = %d, want %d", score, tt.want)
			}
			if len(factors) != tt.factors {
				t.Errorf("factors = %d, want %d (%+v)", len(factors), tt.factors, factors)
			}
		})
	}
}

func TestScoreIsCapped(t *testing.T) {
	// The cap only matters if the factor weights ever sum past 100; today they
	// top out at 80, so force the arithmetic directly.
	now := time.Now().UTC()
	b := models.Booking{
		Status:        models.BookingSuspended,
		PaymentStatus: models.PaymentFailed,
		Proposal:      models.ProposalSnapshot{Price: decimal.NewFromInt(9000)},
		CreatedAt:     now.Add(-24 * time.Hour),
		Deadline:      now.Add(-time.Hour),
	}
	score, _ := Score(b, now)
	if score > 100 {
		t.Errorf("score = %d, exceeds cap", score)
	}
}
