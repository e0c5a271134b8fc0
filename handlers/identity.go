package handlers

import (
	"net/http"

	cartSvc "studiobook/services/cart"
	"studiobook/utils"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the front proxy after it authenticates the user.
// Guests carry only a cart token minted by the SPA.
const (
	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"
	headerCartToken = "X-Cart-Token"
)

func identityFrom(c *gin.Context) cartSvc.Identity {
	return cartSvc.Identity{
		UserID:    c.GetHeader(headerUserID),
		Email:     c.GetHeader(headerUserEmail),
		CartToken: c.GetHeader(headerCartToken),
	}
}

// requireUser rejects requests that carry no authenticated user identity.
func requireUser(c *gin.Context) (cartSvc.Identity, bool) {
	id := identityFrom(c)
	if id.UserID == "" || id.Email == "" {
		utils.JSONError(c, http.StatusUnauthorized, "authentication required", "")
		return id, false
	}
	return id, true
}

// requireOwner rejects requests with neither a user nor a guest cart token.
func requireOwner(c *gin.Context) (cartSvc.Identity, bool) {
	id := identityFrom(c)
	if id.Owner() == "" {
		utils.JSONError(c, http.StatusUnauthorized, "a user or cart token is required", "")
		return id, false
	}
	return id, true
}
