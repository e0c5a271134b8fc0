package cart

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	bookingRepo "studiobook/database/repository/booking"
	giftvoucherRepo "studiobook/database/repository/giftvoucher"
	membershipRepo "studiobook/database/repository/membership"
	"studiobook/models"
	voucherSvc "studiobook/services/voucher"

	"go.uber.org/zap"
)

// Identity is who the cart belongs to. Logged-in users carry a UserID and
// Email; guests carry only a cart token and, once known, an email.
type Identity struct {
	UserID    string
	Email     string
	CartToken string
}

// Owner is the key cart state is stored under: the user id when present,
// otherwise the guest token.
func (id Identity) Owner() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.CartToken
}

// Service assembles a user's cart from their unpaid items and prices it.
// Every view re-validates applied voucher codes; codes that lapsed since
// application are detached silently.
type Service struct {
	Bookings     bookingRepo.Repository
	Memberships  membershipRepo.Repository
	GiftVouchers giftvoucherRepo.Repository
	Vouchers     *voucherSvc.Engine
	Store        *Store
	Logger       *zap.Logger
}

// Assemble gathers the identity's unpaid items, re-validates applied codes
// and returns the priced cart. Item order is stable: bookings, then
// memberships, then gift vouchers, each oldest first.
func (s *Service) Assemble(ctx context.Context, id Identity) (*models.Cart, error) {
	var items []models.CartItem

	if id.UserID != "" {
		bookings, err := s.Bookings.ListUnpaidByUser(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		for i := range bookings {
			items = append(items, &bookings[i])
		}

		memberships, err := s.Memberships.ListUnpaidByUser(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		for i := range memberships {
			items = append(items, &memberships[i])
		}
	}

	gifts, err := s.unpaidGiftVouchers(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range gifts {
		items = append(items, &gifts[i])
	}

	s.Vouchers.Revalidate(ctx, items)

	c := &models.Cart{OwnerEmail: id.Email, Items: items}
	if err := s.price(ctx, id, c); err != nil {
		return nil, err
	}
	return c, nil
}

// unpaidGiftVouchers resolves gift-voucher purchases for either identity
// shape. A guest's purchases are found via the ids stored under their token.
func (s *Service) unpaidGiftVouchers(ctx context.Context, id Identity) ([]models.GiftVoucherPurchase, error) {
	if id.UserID != "" {
		return s.GiftVouchers.ListUnpaidByPurchaser(ctx, id.Email)
	}
	ids, err := s.Store.GuestItems(ctx, id.CartToken)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	gifts, err := s.GiftVouchers.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	unpaid := gifts[:0]
	for _, g := range gifts {
		if !g.Paid {
			unpaid = append(unpaid, g)
		}
	}
	return unpaid, nil
}

// price fills in Subtotal, TotalVoucherCode and Total. A stored
// checkout-total code that no longer validates is cleared, not reported.
func (s *Service) price(ctx context.Context, id Identity, c *models.Cart) error {
	var subtotal float64
	for _, item := range c.Items {
		subtotal += item.CurrentCost()
	}
	c.Subtotal = subtotal
	c.Total = subtotal

	code, err := s.Store.TotalVoucher(ctx, id.Owner())
	if err != nil {
		return err
	}
	if code == "" {
		return nil
	}

	v, err := s.Vouchers.ValidateTotal(ctx, id.UserID, id.Email, code)
	if err != nil {
		s.Logger.Info("detaching invalid checkout voucher",
			zap.String("code", code), zap.Error(err))
		if derr := s.Store.ClearTotalVoucher(ctx, id.Owner()); derr != nil {
			return derr
		}
		return nil
	}

	c.TotalVoucherCode = code
	c.Total = voucherSvc.Discounted(v, subtotal)
	return nil
}

// ApplyTotalVoucher validates and stores a checkout-total code for the
// identity's cart.
func (s *Service) ApplyTotalVoucher(ctx context.Context, id Identity, code string) error {
	if _, err := s.Vouchers.ValidateTotal(ctx, id.UserID, id.Email, code); err != nil {
		return err
	}
	return s.Store.SetTotalVoucher(ctx, id.Owner(), code)
}

// RemoveTotalVoucher drops the identity's checkout-total code.
func (s *Service) RemoveTotalVoucher(ctx context.Context, id Identity) error {
	return s.Store.ClearTotalVoucher(ctx, id.Owner())
}

// MarkCheckoutStarted attaches the invoice to every cart item and stamps the
// checkout time, so the expiry sweep leaves the cart alone while payment
// completes and settlement can find the items by invoice later.
func (s *Service) MarkCheckoutStarted(ctx context.Context, c *models.Cart, invoiceID string, at time.Time) error {
	for _, item := range c.Items {
		t := at
		item.SetCheckoutTime(&t)
		item.SetInvoiceID(invoiceID)
		if err := s.saveItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) saveItem(ctx context.Context, item models.CartItem) error {
	switch it := item.(type) {
	case *models.Booking:
		_, err := s.Bookings.Update(ctx, it)
		return err
	case *models.Membership:
		_, err := s.Memberships.Update(ctx, it)
		return err
	case *models.GiftVoucherPurchase:
		return s.GiftVouchers.Update(ctx, it)
	default:
		return nil
	}
}

// ItemSetHash fingerprints the cart's item set by identity. Prices and
// voucher codes are deliberately excluded: invoice reuse keys on which items
// are being bought, and the reused invoice is re-priced on every checkout, so
// applying a discount between attempts must not orphan the invoice and its
// live payment intent.
func ItemSetHash(c *models.Cart) string {
	lines := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, string(item.CartItemKind())+"|"+item.CartItemID())
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
