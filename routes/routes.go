package routes

import (
	"net/http"
	"time"

	"studiobook/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires CORS and the full API surface.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-User-ID", "X-User-Email", "X-Cart-Token", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r)
	RegisterTimetableRoutes(r, hb)
	RegisterBookingRoutes(r, hb)
	RegisterCartRoutes(r, hb)
	RegisterCheckoutRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
}

// RegisterTimetableRoutes registers the public session listing.
func RegisterTimetableRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/timetable")
	{
		api.GET("", hb.Timetable)
		api.GET("/sessions/:sessionID", hb.GetSession)
	}
	r.GET("/api/agreements/:name", hb.GetAgreementFlag)
}

// RegisterBookingRoutes registers booking lifecycle and waiting-list
// endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/bookings")
	{
		api.POST("", hb.CreateBooking)
		api.POST("/:bookingID/cancel", hb.CancelBooking)
		api.POST("/:bookingID/rebook", hb.RebookBooking)
	}
	wl := r.Group("/api/waiting-list")
	{
		wl.POST("", hb.JoinWaitingList)
		wl.DELETE("/:sessionID", hb.LeaveWaitingList)
	}
}

// RegisterCartRoutes registers cart, voucher and purchase endpoints.
func RegisterCartRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/cart")
	{
		api.GET("", hb.GetCart)
		api.POST("/vouchers", hb.ApplyItemVoucher)
		api.DELETE("/vouchers/:code", hb.RemoveItemVoucher)
		api.POST("/total-voucher", hb.ApplyTotalVoucher)
		api.DELETE("/total-voucher", hb.RemoveTotalVoucher)
		api.POST("/memberships", hb.PurchaseMembership)
		api.POST("/gift-vouchers", hb.PurchaseGiftVoucher)
	}
	r.GET("/api/membership-types", hb.ListMembershipTypes)
}

// RegisterCheckoutRoutes registers checkout and the payment webhook.
func RegisterCheckoutRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/api/checkout", hb.BeginCheckout)
	r.POST("/api/webhooks/stripe", hb.StripeWebhook)
}

// RegisterAdminRoutes registers operator endpoints. Authentication happens at
// the front proxy, which only forwards /api/admin to operators.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/admin")
	{
		api.POST("/sessions", hb.CreateSession)
		api.PUT("/sessions/:sessionID", hb.UpdateSession)
		api.GET("/sessions/:sessionID/bookings", hb.SessionBookings)
		api.POST("/bookings/:bookingID/attendance", hb.MarkAttendance)
		api.POST("/bookings/import-cancelled", hb.ImportCancelledBooking)
		api.GET("/invoices", hb.ListInvoices)
		api.POST("/vouchers", hb.CreateVoucher)
		api.PUT("/vouchers/:code", hb.UpdateVoucher)
		api.GET("/vouchers/:code/usage", hb.VoucherUsage)
		api.PUT("/agreements/:name", hb.SetAgreementFlag)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
