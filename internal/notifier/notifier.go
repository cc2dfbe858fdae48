// Package notifier is the boundary to the notification fan-out. Delivery is
// best effort: the core never waits on it and never fails an operation because
// a notification could not be sent.
package notifier

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/logger"
)

type Event string

const (
	EventProposalSubmitted Event = "proposal.submitted"
	EventProposalApproved  Event = "proposal.approved"
	EventProposalAccepted  Event = "proposal.accepted"
	EventProposalRejected  Event = "proposal.rejected"
	EventBookingCanceled   Event = "booking.canceled"
	EventBookingCompleted  Event = "booking.completed"
	EventRequestApproved   Event = "request.approved"
	EventRequestRejected   Event = "request.rejected"
)

type Notifier interface {
	Emit(event Event, userID uuid.UUID, payload map[string]any)
}

// New returns the HTTP dispatcher when an address is configured, otherwise a
// log-only one.
func New(address string) Notifier {
	if address == "" {
		return LogNotifier{}
	}
	return &HTTPNotifier{
		Address: address,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type LogNotifier struct{}

func (LogNotifier) Emit(event Event, userID uuid.UUID, payload map[string]any) {
	logger.Log.Info("notification",
		zap.String("event", string(event)),
		zap.String("userID", userID.String()),
		zap.Any("payload", payload))
}

// HTTPNotifier posts events to the external dispatcher without waiting for the
// result.
type HTTPNotifier struct {
	Address string
	Client  *http.Client
}

type envelope struct {
	Event   Event          `json:"event"`
	UserID  uuid.UUID      `json:"userId"`
	Payload map[string]any `json:"payload"`
}

func (n *HTTPNotifier) Emit(event Event, userID uuid.UUID, payload map[string]any) {
	go func() {
		body, err := json.Marshal(envelope{Event: event, UserID: userID, Payload: payload})
		if err != nil {
			logger.Log.Error("Failed to encode notification", zap.Error(err))
			return
		}

		resp, err := n.Client.Post(n.Address+"/api/notifications", "application/json", bytes.NewBuffer(body))
		if err != nil {
			logger.Log.Warn("Failed to deliver notification",
				zap.String("event", string(event)), zap.Error(err))
			return
		}
		resp.Body.Close()
	}()
}
