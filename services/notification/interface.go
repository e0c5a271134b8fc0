package notification

import (
	"context"

	"studiobook/models"
)

// Service decides nothing itself; the booking and checkout services tell it
// what to send and to whom. Rendering and delivery live behind the email
// worker and are out of scope here.
type Service interface {
	SendBookingConfirmation(ctx context.Context, email string, session *models.Session) error
	SendBookingCancellation(ctx context.Context, email string, session *models.Session) error
	NotifySpotAvailable(ctx context.Context, email string, session *models.Session) error
	NotifyWaitingList(ctx context.Context, emails []string, session *models.Session) error
	SendPaymentReceipt(ctx context.Context, email string, invoice *models.Invoice) error
	AlertOperator(ctx context.Context, subject, detail string) error
}
