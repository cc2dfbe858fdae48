// Package risk derives a 0-100 score for a booking from data the core owns:
// deadline pressure, contract size and payment/suspension state. The score is
// informational only; nothing in the system transitions on it.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/models"
)

type Factor struct {
	Factor   string `json:"factor"`
	Severity string `json:"severity"`
	Details  string `json:"details"`
}

var highValueThreshold = decimal.NewFromInt(5000)

// Score evaluates the booking at the given instant.
func Score(b models.Booking, now time.Time) (int, []Factor) {
	score := 0
	var factors []Factor

	daysUntilDeadline := b.Deadline.Sub(now).Hours() / 24
	switch {
	case daysUntilDeadline < 0:
		score += 25
		factors = append(factors, Factor{
			Factor: "deadline_passed", Severity: "high",
			Details: "Deadline has passed",
		})
	case daysUntilDeadline < 2:
		score += 12
		factors = append(factors, Factor{
			Factor: "deadline_approaching", Severity: "medium",
			Details: fmt.Sprintf("Deadline in %d days", int(daysUntilDeadline)),
		})
	}

	durationDays := b.Deadline.Sub(b.CreatedAt).Hours() / 24
	if b.Proposal.Price.GreaterThan(highValueThreshold) && durationDays < 7 {
		score += 10
		factors = append(factors, Factor{
			Factor: "high_value_short_deadline", Severity: "medium",
			Details: fmt.Sprintf("High value (%s) with short deadline (%d days)",
				b.Proposal.Price.StringFixed(2), int(durationDays)),
		})
	}

	if b.PaymentStatus == models.PaymentFailed {
		score += 15
		factors = append(factors, Factor{
			Factor: "payment_failed", Severity: "high",
			Details: "Payment transaction failed",
		})
	}

	if b.Status == models.BookingSuspended {
		score += 30
		factors = append(factors, Factor{
			Factor: "order_suspended", Severity: "critical",
			Details: "Booking has been suspended",
		})
	}

	if score > 100 {
		score = 100
	}
	return score, factors
}
