package handlers

import (
	"net/http"
	"strings"
	"time"

	"studiobook/models"
	"studiobook/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetCart returns the owner's priced cart. Applied voucher codes are
// re-validated on every view.
func (hb *HandlerBundle) GetCart(c *gin.Context) {
	id, ok := requireOwner(c)
	if !ok {
		return
	}

	cart, err := hb.Cart.Assemble(c.Request.Context(), id)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// ApplyItemVoucher applies an item-level code across the cart.
func (hb *HandlerBundle) ApplyItemVoucher(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	cart, err := hb.Cart.Assemble(c.Request.Context(), id)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	applied, err := hb.Vouchers.ApplyToCart(c.Request.Context(), id.UserID, id.Email, input.Code, cart.Items)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied_to": applied})
}

// RemoveItemVoucher detaches a code from every cart item carrying it.
func (hb *HandlerBundle) RemoveItemVoucher(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}

	cart, err := hb.Cart.Assemble(c.Request.Context(), id)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	if err := hb.Vouchers.RemoveFromCart(c.Request.Context(), c.Param("code"), cart.Items); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// ApplyTotalVoucher stores a checkout-total code against the cart.
func (hb *HandlerBundle) ApplyTotalVoucher(c *gin.Context) {
	id, ok := requireOwner(c)
	if !ok {
		return
	}
	var input struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	if err := hb.Cart.ApplyTotalVoucher(c.Request.Context(), id, input.Code); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

// RemoveTotalVoucher drops the stored checkout-total code.
func (hb *HandlerBundle) RemoveTotalVoucher(c *gin.Context) {
	id, ok := requireOwner(c)
	if !ok {
		return
	}

	if err := hb.Cart.RemoveTotalVoucher(c.Request.Context(), id); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// PurchaseMembership puts an unpaid membership for the given type and month
// into the user's cart.
func (hb *HandlerBundle) PurchaseMembership(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}
	var input struct {
		TypeName string `json:"type_name" binding:"required"`
		Month    int    `json:"month" binding:"required,min=1,max=12"`
		Year     int    `json:"year" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	mt, err := hb.Memberships.GetType(c.Request.Context(), input.TypeName)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	if !mt.Active {
		hb.respondError(c, errNotPurchasable)
		return
	}

	m := &models.Membership{
		ID:              uuid.New().String(),
		UserID:          id.UserID,
		UserEmail:       id.Email,
		TypeName:        mt.Name,
		EventType:       mt.EventType,
		AllottedClasses: mt.AllottedClasses,
		Month:           input.Month,
		Year:            input.Year,
		Cost:            mt.Price,
		PurchasedAt:     time.Now(),
	}
	if err := hb.Memberships.Create(c.Request.Context(), m); err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// PurchaseGiftVoucher puts a gift-voucher purchase in the cart. A fresh
// single-use fixed-amount code is minted inactive and only goes live once
// the purchase settles. Guests may buy gift vouchers.
func (hb *HandlerBundle) PurchaseGiftVoucher(c *gin.Context) {
	id, ok := requireOwner(c)
	if !ok {
		return
	}
	var input struct {
		Amount        float64 `json:"amount" binding:"required,gt=0"`
		RecipientName string  `json:"recipient_name"`
		Email         string  `json:"email"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}
	email := id.Email
	if email == "" {
		email = input.Email
	}
	if email == "" {
		hb.respondError(c, errGiftNeedsEmail)
		return
	}

	amount := input.Amount
	maxUses := 1
	v := &models.Voucher{
		Code:           giftCode(),
		Kind:           models.VoucherTotal,
		DiscountAmount: &amount,
		StartDate:      time.Now(),
		MaxTotalUses:   &maxUses,
		MaxUsesPerUser: 1,
	}
	if err := hb.VoucherRepo.Create(c.Request.Context(), v); err != nil {
		hb.respondError(c, err)
		return
	}

	g := &models.GiftVoucherPurchase{
		ID:             uuid.New().String(),
		PurchaserEmail: email,
		RecipientName:  input.RecipientName,
		VoucherCode:    v.Code,
		Cost:           input.Amount,
	}
	if err := hb.GiftVouchers.Create(c.Request.Context(), g); err != nil {
		hb.respondError(c, err)
		return
	}

	if id.UserID == "" {
		if err := hb.CartStore.AddGuestItem(c.Request.Context(), id.CartToken, g.ID); err != nil {
			hb.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, g)
}

func giftCode() string {
	return "GIFT-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
