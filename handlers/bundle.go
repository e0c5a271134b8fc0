package handlers

import (
	"errors"
	"net/http"

	"studiobook/database/repository"
	bookingRepo "studiobook/database/repository/booking"
	giftvoucherRepo "studiobook/database/repository/giftvoucher"
	invoiceRepo "studiobook/database/repository/invoice"
	membershipRepo "studiobook/database/repository/membership"
	sessionRepo "studiobook/database/repository/session"
	settingsRepo "studiobook/database/repository/settings"
	voucherRepo "studiobook/database/repository/voucher"
	bookingSvc "studiobook/services/booking"
	cartSvc "studiobook/services/cart"
	checkoutSvc "studiobook/services/checkout"
	voucherSvc "studiobook/services/voucher"
	waitinglistSvc "studiobook/services/waitinglist"
	"studiobook/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// HandlerBundle carries the wired services so routes can be registered
// against methods instead of package globals.
type HandlerBundle struct {
	StateMachine *bookingSvc.StateMachine
	Capacity     *bookingSvc.CapacityTracker
	WaitingList  *waitinglistSvc.Coordinator
	Vouchers     *voucherSvc.Engine
	Cart         *cartSvc.Service
	CartStore    *cartSvc.Store
	Checkout     *checkoutSvc.Reconciler

	Sessions      sessionRepo.Repository
	Bookings      bookingRepo.Repository
	Memberships   membershipRepo.Repository
	GiftVouchers  giftvoucherRepo.Repository
	Invoices      invoiceRepo.Repository
	VoucherRepo   voucherRepo.Repository
	Settings      settingsRepo.Repository
	Flags         *utils.FlagCache
	CacheClient   *redis.Client
	WebhookSecret string
	Logger        *zap.Logger
}

var (
	errNotPurchasable = bookingSvc.NewValidationError("this membership type is not currently available")
	errGiftNeedsEmail = bookingSvc.NewValidationError("an email address is required to buy a gift voucher")
)

// respondError maps domain errors onto HTTP statuses. Unknown errors are
// logged and surfaced as a 500 without internal detail.
func (hb *HandlerBundle) respondError(c *gin.Context, err error) {
	var (
		validationErr *bookingSvc.ValidationError
		voucherErr    *voucherSvc.InvalidError
		mismatchErr   *checkoutSvc.TotalMismatchError
	)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.JSONError(c, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, bookingSvc.ErrSessionFull),
		errors.Is(err, bookingSvc.ErrAlreadyBooked),
		errors.Is(err, checkoutSvc.ErrCheckoutBusy):
		utils.JSONError(c, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &mismatchErr):
		utils.JSONError(c, http.StatusConflict, "cart changed", err.Error())
	case errors.As(err, &validationErr),
		errors.As(err, &voucherErr),
		errors.Is(err, checkoutSvc.ErrEmptyCart):
		utils.JSONError(c, http.StatusBadRequest, "invalid request", err.Error())
	default:
		hb.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal Server Error", "")
	}
}
