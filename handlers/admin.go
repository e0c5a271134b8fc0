package handlers

import (
	"net/http"
	"time"

	"studiobook/models"
	"studiobook/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateSession adds a bookable session to the timetable.
func (hb *HandlerBundle) CreateSession(c *gin.Context) {
	var input models.Session
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}

	if err := hb.Sessions.Create(c.Request.Context(), &input); err != nil {
		hb.respondError(c, err)
		return
	}
	hb.invalidateTimetable(c.Request.Context())
	c.JSON(http.StatusCreated, input)
}

// UpdateSession edits a session's details, including cancelling it.
func (hb *HandlerBundle) UpdateSession(c *gin.Context) {
	var input models.Session
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}
	input.ID = c.Param("sessionID")

	if err := hb.Sessions.Update(c.Request.Context(), &input); err != nil {
		hb.respondError(c, err)
		return
	}
	hb.invalidateTimetable(c.Request.Context())
	c.JSON(http.StatusOK, input)
}

// SessionBookings lists every booking row for a session, including cancelled
// and no-show rows, for the register view.
func (hb *HandlerBundle) SessionBookings(c *gin.Context) {
	bookings, err := hb.Bookings.ListBySession(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// MarkAttendance records whether the user turned up.
func (hb *HandlerBundle) MarkAttendance(c *gin.Context) {
	var input struct {
		Attended *bool `json:"attended" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	b, err := hb.StateMachine.MarkAttendance(c.Request.Context(), c.Param("bookingID"), *input.Attended)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ImportCancelledBooking backfills a historical cancellation so reporting
// stays complete. No capacity check applies.
func (hb *HandlerBundle) ImportCancelledBooking(c *gin.Context) {
	var input struct {
		UserID    string    `json:"user_id" binding:"required"`
		UserEmail string    `json:"user_email" binding:"required"`
		SessionID string    `json:"session_id" binding:"required"`
		BookedAt  time.Time `json:"booked_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	b, err := hb.StateMachine.ImportCancelled(c.Request.Context(), input.UserID, input.UserEmail, input.SessionID, input.BookedAt)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// ListInvoices returns all invoices for reporting.
func (hb *HandlerBundle) ListInvoices(c *gin.Context) {
	invoices, err := hb.Invoices.ListAll(c.Request.Context())
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// CreateVoucher mints a discount code.
func (hb *HandlerBundle) CreateVoucher(c *gin.Context) {
	var input models.Voucher
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	if err := hb.VoucherRepo.Create(c.Request.Context(), &input); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, input)
}

// UpdateVoucher edits a code, including activating or deactivating it.
func (hb *HandlerBundle) UpdateVoucher(c *gin.Context) {
	var input models.Voucher
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}
	input.Code = c.Param("code")

	if err := hb.VoucherRepo.Update(c.Request.Context(), &input); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, input)
}

// VoucherUsage reports how many settled uses a code has had.
func (hb *HandlerBundle) VoucherUsage(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	v, err := hb.VoucherRepo.GetByCode(ctx, code)
	if err != nil {
		hb.respondError(c, err)
		return
	}

	var uses int
	if v.Kind == models.VoucherTotal {
		uses, err = hb.Invoices.CountPaidByTotalVoucher(ctx, code)
	} else {
		var nb, nm int
		nb, err = hb.Bookings.CountPaidByVoucher(ctx, code)
		if err == nil {
			nm, err = hb.Memberships.CountPaidByVoucher(ctx, code)
			uses = nb + nm
		}
	}
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "paid_uses": uses})
}

// ListMembershipTypes returns the purchasable membership types.
func (hb *HandlerBundle) ListMembershipTypes(c *gin.Context) {
	types, err := hb.Memberships.ListActiveTypes(c.Request.Context())
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": types})
}

// GetAgreementFlag reports whether an agreement/waiver is currently active,
// served through the read-through cache.
func (hb *HandlerBundle) GetAgreementFlag(c *gin.Context) {
	active, err := hb.Flags.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "active": active})
}

// SetAgreementFlag updates a flag and invalidates its cache entry so the
// change is visible immediately.
func (hb *HandlerBundle) SetAgreementFlag(c *gin.Context) {
	var input struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}
	name := c.Param("name")

	if err := hb.Settings.SetBool(c.Request.Context(), name, *input.Active); err != nil {
		hb.respondError(c, err)
		return
	}
	if err := hb.Flags.Invalidate(c.Request.Context(), name); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "active": *input.Active})
}
