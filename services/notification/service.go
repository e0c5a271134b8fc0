package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"studiobook/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TypeEmailSend is the asynq task type consumed by the email worker.
const TypeEmailSend = "email:send"

// EmailPayload is the task body handed to the email worker.
type EmailPayload struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// AsynqNotifier enqueues email tasks onto the shared Redis queue so outbound
// dispatch never blocks a request (or holds a row lock).
type AsynqNotifier struct {
	Client *asynq.Client
	Logger *zap.Logger
}

// NewAsynqNotifier creates a notifier backed by the given asynq client.
func NewAsynqNotifier(client *asynq.Client, logger *zap.Logger) *AsynqNotifier {
	return &AsynqNotifier{Client: client, Logger: logger}
}

func (n *AsynqNotifier) enqueue(ctx context.Context, p EmailPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}
	if _, err := n.Client.EnqueueContext(ctx, asynq.NewTask(TypeEmailSend, body)); err != nil {
		return fmt.Errorf("failed to enqueue email task: %w", err)
	}
	return nil
}

func (n *AsynqNotifier) SendBookingConfirmation(ctx context.Context, email string, session *models.Session) error {
	return n.enqueue(ctx, EmailPayload{
		To:       email,
		Subject:  fmt.Sprintf("Booking confirmed: %s", session.Name),
		Template: "booking_confirmed",
		Data:     sessionData(session),
	})
}

func (n *AsynqNotifier) SendBookingCancellation(ctx context.Context, email string, session *models.Session) error {
	return n.enqueue(ctx, EmailPayload{
		To:       email,
		Subject:  fmt.Sprintf("Booking cancelled: %s", session.Name),
		Template: "booking_cancelled",
		Data:     sessionData(session),
	})
}

func (n *AsynqNotifier) NotifySpotAvailable(ctx context.Context, email string, session *models.Session) error {
	return n.enqueue(ctx, EmailPayload{
		To:       email,
		Subject:  fmt.Sprintf("A spot opened up in %s", session.Name),
		Template: "spot_available",
		Data:     sessionData(session),
	})
}

// NotifyWaitingList fans out to every remaining entry; a failure for one
// address is logged and does not stop the rest.
func (n *AsynqNotifier) NotifyWaitingList(ctx context.Context, emails []string, session *models.Session) error {
	var firstErr error
	for _, email := range emails {
		if err := n.NotifySpotAvailable(ctx, email, session); err != nil {
			n.Logger.Warn("failed to notify waiting list entry",
				zap.String("email", email), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (n *AsynqNotifier) SendPaymentReceipt(ctx context.Context, email string, invoice *models.Invoice) error {
	return n.enqueue(ctx, EmailPayload{
		To:       email,
		Subject:  "Payment received",
		Template: "payment_receipt",
		Data: map[string]string{
			"invoice_id": invoice.ID,
			"amount":     fmt.Sprintf("%.2f", invoice.Amount),
		},
	})
}

// AlertOperator raises reconciliation problems to the studio operators.
func (n *AsynqNotifier) AlertOperator(ctx context.Context, subject, detail string) error {
	n.Logger.Error("operator alert", zap.String("subject", subject), zap.String("detail", detail))
	return n.enqueue(ctx, EmailPayload{
		To:       "operators",
		Subject:  subject,
		Template: "operator_alert",
		Data:     map[string]string{"detail": detail},
	})
}

func sessionData(session *models.Session) map[string]string {
	return map[string]string{
		"session_id": session.ID,
		"name":       session.Name,
		"start":      session.Start.Format("Mon 2 Jan 15:04"),
	}
}
