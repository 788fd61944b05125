package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"luxe-escrow-server/models"
	"luxe-escrow-server/repository"
	"luxe-escrow-server/services"
)

// AdminHandler serves payment approval and escrow supervision endpoints
type AdminHandler struct {
	escrow *services.EscrowService
}

func NewAdminHandler(escrow *services.EscrowService) *AdminHandler {
	return &AdminHandler{escrow: escrow}
}

type approvePaymentRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
	PartnerID string `json:"partnerId"`
	AdminID   string `json:"adminId" binding:"required"`
}

type rejectPaymentRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
	AdminID   string `json:"adminId" binding:"required"`
	Reason    string `json:"reason" binding:"max=500"`
}

type adminRequest struct {
	AdminID string `json:"adminId" binding:"required"`
}

type adminBookingsQuery struct {
	AdminID       string `form:"adminId" binding:"required"`
	PartnerID     string `form:"partnerId"`
	PaymentStatus string `form:"paymentStatus" binding:"omitempty,oneof=unpaid held_escrow released captured_transferred refunded cancelled"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset        int    `form:"offset" binding:"omitempty,min=0"`
}

type operationsQuery struct {
	AdminID   string `form:"adminId" binding:"required"`
	BookingID string `form:"bookingId"`
	Step      string `form:"step" binding:"omitempty,oneof=started captured transferred cancelled completed failed"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// ApprovePayment handles POST /api/admin/approve-payment
func (h *AdminHandler) ApprovePayment(c *gin.Context) {
	var req approvePaymentRequest
	if !bindJSON(c, &req) || !allowCaller(c, "adminId", req.AdminID) {
		return
	}

	res, err := h.escrow.AdminApprovePayment(c.Request.Context(), req.BookingID, req.PartnerID, req.AdminID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transfer": res.Transfer, "booking": res.Booking})
}

// RejectPayment handles POST /api/admin/reject-payment
func (h *AdminHandler) RejectPayment(c *gin.Context) {
	var req rejectPaymentRequest
	if !bindJSON(c, &req) || !allowCaller(c, "adminId", req.AdminID) {
		return
	}

	if _, err := h.escrow.AdminRejectPayment(c.Request.Context(), req.BookingID, req.AdminID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment refunded and booking cancelled"})
}

// Bookings handles GET /api/admin/bookings
func (h *AdminHandler) Bookings(c *gin.Context) {
	var q adminBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	if !h.authorize(c, q.AdminID) {
		return
	}

	bookings, err := h.escrow.ListBookings(c.Request.Context(), repository.BookingFilter{
		PartnerID:     q.PartnerID,
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

// Operations handles GET /api/admin/escrow-operations
func (h *AdminHandler) Operations(c *gin.Context) {
	var q operationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	if !h.authorize(c, q.AdminID) {
		return
	}

	filter := repository.OperationFilter{BookingID: q.BookingID, Limit: q.Limit}
	if q.Step != "" {
		filter.Steps = []models.OperationStep{models.OperationStep(q.Step)}
	}
	ops, err := h.escrow.ListOperations(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

// RetryOperation handles POST /api/admin/escrow-operations/:id/retry
func (h *AdminHandler) RetryOperation(c *gin.Context) {
	var req adminRequest
	if !bindJSON(c, &req) || !allowCaller(c, "adminId", req.AdminID) {
		return
	}

	op, err := h.escrow.RetryOperation(c.Request.Context(), c.Param("id"), req.AdminID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operation": op})
}

func (h *AdminHandler) authorize(c *gin.Context, adminID string) bool {
	if !allowCaller(c, "adminId", adminID) {
		return false
	}
	if err := h.escrow.RequireAdmin(c.Request.Context(), adminID); err != nil {
		respondError(c, err)
		return false
	}
	return true
}
