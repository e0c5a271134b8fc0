package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studiobook/database/repository"
	bookingRepo "studiobook/database/repository/booking"
	invoiceRepo "studiobook/database/repository/invoice"
	membershipRepo "studiobook/database/repository/membership"
	voucherRepo "studiobook/database/repository/voucher"
	"studiobook/models"
	"studiobook/utils"

	"go.uber.org/zap"
)

// Engine validates and applies discount codes. Item vouchers discount
// individual cart items; total vouchers discount the whole checkout total.
type Engine struct {
	Vouchers    voucherRepo.Repository
	Bookings    bookingRepo.Repository
	Memberships membershipRepo.Repository
	Invoices    invoiceRepo.Repository
	Logger      *zap.Logger

	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Discounted applies the voucher's discount to an amount: percentage codes
// round to 2 decimals, fixed-amount codes floor at zero.
func Discounted(v *models.Voucher, original float64) float64 {
	if v.DiscountPercent != nil {
		return utils.Round2(original * (100 - *v.DiscountPercent) / 100)
	}
	d := original - *v.DiscountAmount
	if d < 0 {
		return 0
	}
	return utils.Round2(d)
}

// Validate runs the full validation chain for a code. Any failure is
// terminal for that code.
func (e *Engine) Validate(ctx context.Context, v *models.Voucher, userID, email string) error {
	now := e.now()
	if v.ExpiryDate != nil && !now.Before(*v.ExpiryDate) {
		return newInvalid(v.Code, "this voucher has expired")
	}
	if !v.Activated {
		return newInvalid(v.Code, "this voucher has not been activated yet")
	}
	if now.Before(v.StartDate) {
		return newInvalid(v.Code, fmt.Sprintf("this voucher is not valid until %s", v.StartDate.Format("2 Jan 2006")))
	}
	if v.MaxTotalUses != nil {
		uses, err := e.globalPaidUses(ctx, v)
		if err != nil {
			return err
		}
		if uses >= *v.MaxTotalUses {
			return newInvalid(v.Code, "this voucher has been used the maximum number of times")
		}
	}
	if v.MaxUsesPerUser > 0 {
		uses, err := e.userUses(ctx, v, userID, email)
		if err != nil {
			return err
		}
		if uses >= v.MaxUsesPerUser {
			return newInvalid(v.Code, "you have used this voucher the maximum number of times")
		}
	}
	return nil
}

// globalPaidUses counts settled uses across all users. Unpaid cart items do
// not consume the global cap.
func (e *Engine) globalPaidUses(ctx context.Context, v *models.Voucher) (int, error) {
	if v.Kind == models.VoucherTotal {
		return e.Invoices.CountPaidByTotalVoucher(ctx, v.Code)
	}
	nb, err := e.Bookings.CountPaidByVoucher(ctx, v.Code)
	if err != nil {
		return 0, err
	}
	nm, err := e.Memberships.CountPaidByVoucher(ctx, v.Code)
	if err != nil {
		return 0, err
	}
	return nb + nm, nil
}

// userUses counts the requesting user's paid uses plus codes currently
// applied to unpaid items, so a user cannot stack one code across a cart to
// exceed their cap.
func (e *Engine) userUses(ctx context.Context, v *models.Voucher, userID, email string) (int, error) {
	if v.Kind == models.VoucherTotal {
		return e.Invoices.CountUserTotalVoucherUses(ctx, v.Code, email)
	}
	nb, err := e.Bookings.CountUserVoucherUses(ctx, v.Code, userID)
	if err != nil {
		return 0, err
	}
	nm, err := e.Memberships.CountUserVoucherUses(ctx, v.Code, userID)
	if err != nil {
		return 0, err
	}
	return nb + nm, nil
}

// ApplyToCart applies an item code to as many eligible, not-yet-discounted
// unpaid items as the remaining uses budget allows, in stable cart order.
// Items carrying a different code are re-discounted with this one where
// eligible. If the budget runs out partway, the tentative application is
// rolled back from the first item rather than left partially consistent.
func (e *Engine) ApplyToCart(ctx context.Context, userID, email, code string, items []models.CartItem) (int, error) {
	v, err := e.Vouchers.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, newInvalid(code, "this voucher code was not found")
		}
		return 0, err
	}
	if v.Kind != models.VoucherItem {
		return 0, newInvalid(code, "this voucher can only be applied at checkout")
	}
	if err := e.Validate(ctx, v, userID, email); err != nil {
		return 0, err
	}

	eligible := 0
	for _, item := range items {
		if item.VoucherEligible(v) {
			eligible++
		}
	}
	if eligible == 0 {
		return 0, newInvalid(code, "this voucher is not valid for any item in your cart")
	}

	budget, err := e.remainingBudget(ctx, v, userID, email)
	if err != nil {
		return 0, err
	}
	if budget <= 0 {
		return 0, newInvalid(code, "you have used this voucher the maximum number of times")
	}

	applied := 0
	var first models.CartItem
	for _, item := range items {
		if !item.VoucherEligible(v) || item.AppliedVoucher() == code {
			continue
		}
		if applied >= budget {
			// Cap exhausted mid-application: undo the first tentative
			// assignment so the cart is not left partially consistent.
			if first != nil {
				first.ClearDiscount()
				if err := e.saveItem(ctx, first); err != nil {
					return applied, err
				}
				applied--
			}
			break
		}
		item.SetDiscount(code, Discounted(v, item.BaseCost()))
		if err := e.saveItem(ctx, item); err != nil {
			return applied, err
		}
		if first == nil {
			first = item
		}
		applied++
	}
	if applied == 0 {
		return 0, newInvalid(code, "this voucher is already applied to every eligible item")
	}
	return applied, nil
}

// remainingBudget is how many more unpaid items this user may still discount
// with the code, bounded by both the per-user and the global cap.
func (e *Engine) remainingBudget(ctx context.Context, v *models.Voucher, userID, email string) (int, error) {
	budget := int(^uint(0) >> 1) // effectively unbounded
	if v.MaxUsesPerUser > 0 {
		uses, err := e.userUses(ctx, v, userID, email)
		if err != nil {
			return 0, err
		}
		budget = v.MaxUsesPerUser - uses
	}
	if v.MaxTotalUses != nil {
		uses, err := e.globalPaidUses(ctx, v)
		if err != nil {
			return 0, err
		}
		if left := *v.MaxTotalUses - uses; left < budget {
			budget = left
		}
	}
	return budget, nil
}

// RemoveFromCart detaches a code from every cart item carrying it; the items
// revert to full price.
func (e *Engine) RemoveFromCart(ctx context.Context, code string, items []models.CartItem) error {
	for _, item := range items {
		if item.AppliedVoucher() != code {
			continue
		}
		item.ClearDiscount()
		if err := e.saveItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Revalidate re-checks previously applied codes on every cart view. Codes
// that became invalid since application (deactivated, expired) are silently
// detached and the items reprice; this is not an error.
func (e *Engine) Revalidate(ctx context.Context, items []models.CartItem) {
	checked := make(map[string]bool)
	for _, item := range items {
		code := item.AppliedVoucher()
		if code == "" {
			continue
		}
		valid, seen := checked[code]
		if !seen {
			valid = e.stillValid(ctx, code)
			checked[code] = valid
		}
		if valid {
			continue
		}
		item.ClearDiscount()
		if err := e.saveItem(ctx, item); err != nil {
			e.Logger.Warn("failed to detach invalid voucher",
				zap.String("code", code), zap.Error(err))
		}
	}
}

// stillValid checks only the conditions that can lapse after application.
func (e *Engine) stillValid(ctx context.Context, code string) bool {
	v, err := e.Vouchers.GetByCode(ctx, code)
	if err != nil {
		return false
	}
	now := e.now()
	if !v.Activated || now.Before(v.StartDate) {
		return false
	}
	if v.ExpiryDate != nil && !now.Before(*v.ExpiryDate) {
		return false
	}
	return true
}

// ValidateTotal resolves and validates a checkout-total code.
func (e *Engine) ValidateTotal(ctx context.Context, userID, email, code string) (*models.Voucher, error) {
	v, err := e.Vouchers.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newInvalid(code, "this voucher code was not found")
		}
		return nil, err
	}
	if v.Kind != models.VoucherTotal {
		return nil, newInvalid(code, "this voucher applies to individual items, not the total")
	}
	if err := e.Validate(ctx, v, userID, email); err != nil {
		return nil, err
	}
	return v, nil
}

// TotalStillValid is the silent-detach variant for a stored checkout code.
func (e *Engine) TotalStillValid(ctx context.Context, code string) bool {
	return e.stillValid(ctx, code)
}

// saveItem persists a mutated cart item through the repository matching its
// kind. Gift vouchers carry no discount slot, so there is nothing to save.
func (e *Engine) saveItem(ctx context.Context, item models.CartItem) error {
	switch item.CartItemKind() {
	case models.CartItemBooking:
		b, ok := item.(*models.Booking)
		if !ok {
			return fmt.Errorf("cart item %s has kind booking but type %T", item.CartItemID(), item)
		}
		_, err := e.Bookings.Update(ctx, b)
		return err
	case models.CartItemMembership:
		m, ok := item.(*models.Membership)
		if !ok {
			return fmt.Errorf("cart item %s has kind membership but type %T", item.CartItemID(), item)
		}
		_, err := e.Memberships.Update(ctx, m)
		return err
	default:
		return nil
	}
}
