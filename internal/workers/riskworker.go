package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/risk"
	"github.com/accountax/marketd/internal/storage"
)

// InitRiskWorker starts the periodic rescoring of in-flight bookings. The
// worker only refreshes the cached risk score; it never transitions a booking.
func InitRiskWorker(st storage.Store, interval time.Duration) {
	go startWorker(st, interval)

	logger.Log.Info("Risk scoring worker started", zap.Duration("interval", interval))
}

func startWorker(st storage.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	for range ticker.C {
		rescoreBookings(st)
	}
}

func rescoreBookings(st storage.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	bookings, err := st.BookingsByStatus(ctx,
		models.BookingActive, models.BookingInProgress, models.BookingPendingReview, models.BookingSuspended)
	if err != nil {
		logger.Log.Error("Error loading bookings for rescoring", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, booking := range bookings {
		score, _ := risk.Score(booking, now)
		if score == booking.RiskScore {
			continue
		}
		booking.RiskScore = score
		if err := st.UpdateBooking(ctx, booking); err != nil {
			logger.Log.Error("Failed to store risk score",
				zap.String("bookingID", booking.ID.String()), zap.Error(err))
			continue
		}
		logger.Log.Info("Risk score updated",
			zap.String("bookingID", booking.ID.String()),
			zap.Int("riskScore", score))
	}
}
