package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"luxe-escrow-server/models"
	"luxe-escrow-server/repository"
	"luxe-escrow-server/services"
	ws "luxe-escrow-server/websocket"
)

// PartnerHandler serves the partner dashboard endpoints
type PartnerHandler struct {
	escrow        *services.EscrowService
	onboarding    *services.OnboardingService
	notifications *services.NotificationService
	hub           *ws.Hub
	upgrader      *gorillaws.Upgrader
}

func NewPartnerHandler(escrow *services.EscrowService, onboarding *services.OnboardingService, notifications *services.NotificationService, hub *ws.Hub, upgrader *gorillaws.Upgrader) *PartnerHandler {
	return &PartnerHandler{
		escrow:        escrow,
		onboarding:    onboarding,
		notifications: notifications,
		hub:           hub,
		upgrader:      upgrader,
	}
}

type createConnectAccountRequest struct {
	PartnerID    string `json:"partnerId" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Country      string `json:"country" binding:"omitempty,len=2"`
	BusinessType string `json:"businessType" binding:"omitempty,oneof=individual company"`
}

type partnerRequest struct {
	PartnerID string `json:"partnerId" binding:"required"`
}

type bookingPaymentRequest struct {
	BookingID   string          `json:"bookingId" binding:"required"`
	PartnerID   string          `json:"partnerId" binding:"required"`
	CustomerID  string          `json:"customerId" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" binding:"required,currency"`
	ServiceType string          `json:"serviceType" binding:"max=50"`
}

type bookingActionRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
	PartnerID string `json:"partnerId" binding:"required"`
	Reason    string `json:"reason" binding:"max=500"`
}

type bookingListQuery struct {
	PartnerID     string `form:"partnerId" binding:"required"`
	Status        string `form:"status" binding:"omitempty,oneof=pending confirmed in_progress completed cancelled"`
	PaymentStatus string `form:"paymentStatus" binding:"omitempty,oneof=unpaid held_escrow released captured_transferred refunded cancelled"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset        int    `form:"offset" binding:"omitempty,min=0"`
}

// CreateConnectAccount handles POST /api/partners/create-connect-account
func (h *PartnerHandler) CreateConnectAccount(c *gin.Context) {
	var req createConnectAccountRequest
	if !bindJSON(c, &req) || !allowCaller(c, "partnerId", req.PartnerID) {
		return
	}

	accountID, err := h.onboarding.CreateConnectAccount(c.Request.Context(), services.ConnectAccountInput{
		PartnerID:    req.PartnerID,
		Email:        req.Email,
		Country:      req.Country,
		BusinessType: req.BusinessType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accountId": accountID})
}

// OnboardingLink handles POST /api/partners/onboarding-link
func (h *PartnerHandler) OnboardingLink(c *gin.Context) {
	var req partnerRequest
	if !bindJSON(c, &req) || !allowCaller(c, "partnerId", req.PartnerID) {
		return
	}

	link, err := h.onboarding.CreateOnboardingLink(c.Request.Context(), req.PartnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link.URL, "expiresAt": link.ExpiresAt.Unix()})
}

// DashboardLink handles POST /api/partners/dashboard-link
func (h *PartnerHandler) DashboardLink(c *gin.Context) {
	var req partnerRequest
	if !bindJSON(c, &req) || !allowCaller(c, "partnerId", req.PartnerID) {
		return
	}

	link, err := h.onboarding.CreateDashboardLink(c.Request.Context(), req.PartnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link.URL})
}

// AccountStatus handles GET /api/partners/account-status
func (h *PartnerHandler) AccountStatus(c *gin.Context) {
	partnerID := c.Query("partnerId")
	if !allowCaller(c, "partnerId", partnerID) {
		return
	}

	status, err := h.onboarding.SyncAccountStatus(c.Request.Context(), partnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// BookingPayment handles POST /api/partners/booking-payment. The customer creates the hold.
func (h *PartnerHandler) BookingPayment(c *gin.Context) {
	var req bookingPaymentRequest
	if !bindJSON(c, &req) || !allowCaller(c, "customerId", req.CustomerID) {
		return
	}

	res, err := h.escrow.CreateBookingPayment(c.Request.Context(), services.BookingPaymentInput{
		BookingID:   req.BookingID,
		PartnerID:   req.PartnerID,
		CustomerID:  req.CustomerID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ServiceType: req.ServiceType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AcceptBooking handles POST /api/partners/accept-booking
func (h *PartnerHandler) AcceptBooking(c *gin.Context) {
	var req bookingActionRequest
	if !bindJSON(c, &req) || !allowCaller(c, "partnerId", req.PartnerID) {
		return
	}

	if _, err := h.escrow.AcceptBooking(c.Request.Context(), req.BookingID, req.PartnerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Booking accepted"})
}

// RejectBooking handles POST /api/partners/reject-booking
func (h *PartnerHandler) RejectBooking(c *gin.Context) {
	var req bookingActionRequest
	if !bindJSON(c, &req) || !allowCaller(c, "partnerId", req.PartnerID) {
		return
	}

	b, err := h.escrow.RejectBooking(c.Request.Context(), req.BookingID, req.PartnerID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Booking rejected"
	if b.PaymentStatus == models.PaymentStatusCancelled {
		message = "Booking rejected and payment hold released"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// CaptureAndTransfer handles POST /api/partners/capture-and-transfer
func (h *PartnerHandler) CaptureAndTransfer(c *gin.Context) {
	var req bookingActionRequest
	if !bindJSON(c, &req) || !allowCaller(c, "partnerId", req.PartnerID) {
		return
	}

	res, err := h.escrow.CaptureAndTransfer(c.Request.Context(), req.BookingID, req.PartnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transfer": res.Transfer, "booking": res.Booking})
}

// Bookings handles GET /api/partners/bookings
func (h *PartnerHandler) Bookings(c *gin.Context) {
	var q bookingListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	if !allowCaller(c, "partnerId", q.PartnerID) {
		return
	}

	bookings, err := h.escrow.ListBookings(c.Request.Context(), repository.BookingFilter{
		PartnerID:     q.PartnerID,
		Status:        models.BookingStatus(q.Status),
		PaymentStatus: models.PaymentStatus(q.PaymentStatus),
		Limit:         q.Limit,
		Offset:        q.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// Notifications handles GET /api/partners/notifications
func (h *PartnerHandler) Notifications(c *gin.Context) {
	partnerID := c.Query("partnerId")
	if !allowCaller(c, "partnerId", partnerID) {
		return
	}

	list, err := h.notifications.PartnerFeed(c.Request.Context(), partnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkNotificationRead handles POST /api/partners/notifications/:id/read
func (h *PartnerHandler) MarkNotificationRead(c *gin.Context) {
	var req partnerRequest
	if !bindJSON(c, &req) || !allowCaller(c, "partnerId", req.PartnerID) {
		return
	}

	if err := h.notifications.MarkPartnerRead(c.Request.Context(), c.Param("id"), req.PartnerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// NotificationStream handles GET /api/partners/notifications/ws
func (h *PartnerHandler) NotificationStream(c *gin.Context) {
	partnerID := c.Query("partnerId")
	if !allowCaller(c, "partnerId", partnerID) {
		return
	}
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Realtime notifications are not available"})
		return
	}

	log.Printf("🔌 Partner %s opening notification stream", partnerID)
	ws.ServeWebSocket(h.hub, h.upgrader, c.Writer, c.Request, partnerID)
}

// UploadDocument handles POST /api/partners/verification-documents (multipart)
func (h *PartnerHandler) UploadDocument(c *gin.Context) {
	partnerID := c.PostForm("partnerId")
	documentType := c.PostForm("documentType")
	if partnerID == "" || documentType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partnerId and documentType are required"})
		return
	}
	if !allowCaller(c, "partnerId", partnerID) {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read uploaded file"})
		return
	}
	defer file.Close()

	log.Printf("📄 Document %s (%d bytes) received from partner %s", header.Filename, header.Size, partnerID)
	doc, err := h.onboarding.UploadVerificationDocument(c.Request.Context(), partnerID, documentType, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// Documents handles GET /api/partners/verification-documents
func (h *PartnerHandler) Documents(c *gin.Context) {
	partnerID := c.Query("partnerId")
	if !allowCaller(c, "partnerId", partnerID) {
		return
	}

	docs, err := h.onboarding.ListVerificationDocuments(c.Request.Context(), partnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}
