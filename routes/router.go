package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"luxe-escrow-server/config"
	"luxe-escrow-server/middleware"
	"luxe-escrow-server/payments"
	"luxe-escrow-server/services"
	ws "luxe-escrow-server/websocket"
)

// Dependencies are the collaborators the HTTP layer needs.
type Dependencies struct {
	Config        *config.Config
	Escrow        *services.EscrowService
	Onboarding    *services.OnboardingService
	Notifications *services.NotificationService
	Gateway       payments.Gateway
	Hub           *ws.Hub
	Upgrader      *gorillaws.Upgrader
}

// Register mounts every API route on the router
func Register(router *gin.Engine, deps Dependencies) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})

	// Webhooks authenticate with the Stripe signature, not a bearer token.
	webhooks := NewWebhookHandler(deps.Gateway, deps.Escrow, deps.Onboarding, deps.Config.Stripe.WebhookSecret != "")
	router.POST("/api/webhooks/stripe", webhooks.Stripe)

	api := router.Group("/api")
	api.Use(middleware.SupabaseAuth(deps.Config.Supabase))

	partners := NewPartnerHandler(deps.Escrow, deps.Onboarding, deps.Notifications, deps.Hub, deps.Upgrader)
	partnerRoutes := api.Group("/partners")
	{
		partnerRoutes.POST("/create-connect-account", partners.CreateConnectAccount)
		partnerRoutes.POST("/onboarding-link", partners.OnboardingLink)
		partnerRoutes.POST("/dashboard-link", partners.DashboardLink)
		partnerRoutes.GET("/account-status", partners.AccountStatus)

		partnerRoutes.POST("/booking-payment", partners.BookingPayment)
		partnerRoutes.POST("/accept-booking", partners.AcceptBooking)
		partnerRoutes.POST("/reject-booking", partners.RejectBooking)
		partnerRoutes.POST("/capture-and-transfer", partners.CaptureAndTransfer)
		partnerRoutes.GET("/bookings", partners.Bookings)

		partnerRoutes.GET("/notifications", partners.Notifications)
		partnerRoutes.POST("/notifications/:id/read", partners.MarkNotificationRead)
		partnerRoutes.GET("/notifications/ws", partners.NotificationStream)

		partnerRoutes.POST("/verification-documents", partners.UploadDocument)
		partnerRoutes.GET("/verification-documents", partners.Documents)
	}

	notifications := NewNotificationHandler(deps.Notifications)
	api.GET("/notifications", notifications.List)
	api.POST("/notifications/:id/read", notifications.MarkRead)

	bookings := NewBookingHandler(deps.Escrow)
	api.GET("/bookings", bookings.List)

	admin := NewAdminHandler(deps.Escrow)
	adminRoutes := api.Group("/admin")
	{
		adminRoutes.POST("/approve-payment", admin.ApprovePayment)
		adminRoutes.POST("/reject-payment", admin.RejectPayment)
		adminRoutes.GET("/bookings", admin.Bookings)
		adminRoutes.GET("/escrow-operations", admin.Operations)
		adminRoutes.POST("/escrow-operations/:id/retry", admin.RetryOperation)
	}
}
