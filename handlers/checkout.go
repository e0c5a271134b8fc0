package handlers

import (
	"net/http"

	"studiobook/utils"

	"github.com/gin-gonic/gin"
)

// BeginCheckout prices the cart server-side and returns either an immediately
// settled invoice (zero total) or the payment-intent client secret. The
// client's displayed total must match the server price or the checkout
// aborts so the cart can be reviewed.
func (hb *HandlerBundle) BeginCheckout(c *gin.Context) {
	id, ok := requireOwner(c)
	if !ok {
		return
	}
	var input struct {
		ExpectedTotal *float64 `json:"expected_total" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "invalid input", err.Error())
		return
	}

	session, err := hb.Checkout.Begin(c.Request.Context(), id, *input.ExpectedTotal)
	if err != nil {
		hb.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
