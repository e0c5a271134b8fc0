package checkout

import (
	"context"
	"time"

	"studiobook/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
)

// PaymentGateway is the processor surface the reconciler needs: intent
// lifecycle plus refunds. ClientSecret is what the browser needs to confirm
// the payment.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntentRecord, string, error)

	// UpdateIntent re-prices an existing intent after the cart changed.
	// Returns ErrIntentSucceeded when the intent can no longer be changed.
	UpdateIntent(ctx context.Context, intentID string, amount int64, metadata map[string]string) (*models.PaymentIntentRecord, string, error)

	GetIntent(ctx context.Context, intentID string) (*models.PaymentIntentRecord, error)
	Refund(ctx context.Context, intentID string, amount int64) error
}

// StripeGateway implements PaymentGateway against Stripe. The API key is set
// globally on the stripe package at startup.
type StripeGateway struct{}

// RecordFromIntent maps a processor intent onto the local audit record.
func RecordFromIntent(pi *stripe.PaymentIntent) *models.PaymentIntentRecord {
	return &models.PaymentIntentRecord{
		ID:        pi.ID,
		InvoiceID: pi.Metadata["invoice_id"],
		Amount:    pi.Amount,
		Currency:  string(pi.Currency),
		Status:    string(pi.Status),
		Metadata:  pi.Metadata,
		UpdatedAt: time.Now(),
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*models.PaymentIntentRecord, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, "", err
	}
	return RecordFromIntent(pi), pi.ClientSecret, nil
}

func (g *StripeGateway) UpdateIntent(ctx context.Context, intentID string, amount int64, metadata map[string]string) (*models.PaymentIntentRecord, string, error) {
	current, err := paymentintent.Get(intentID, nil)
	if err != nil {
		return nil, "", err
	}
	if current.Status == stripe.PaymentIntentStatusSucceeded {
		return RecordFromIntent(current), "", ErrIntentSucceeded
	}

	params := &stripe.PaymentIntentParams{
		Amount: stripe.Int64(amount),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := paymentintent.Update(intentID, params)
	if err != nil {
		return nil, "", err
	}
	return RecordFromIntent(pi), pi.ClientSecret, nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*models.PaymentIntentRecord, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, err
	}
	return RecordFromIntent(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentID string, amount int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	_, err := refund.New(params)
	return err
}
