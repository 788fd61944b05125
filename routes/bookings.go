package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"luxe-escrow-server/models"
	"luxe-escrow-server/repository"
	"luxe-escrow-server/services"
)

// BookingHandler serves a customer's own bookings
type BookingHandler struct {
	escrow *services.EscrowService
}

func NewBookingHandler(escrow *services.EscrowService) *BookingHandler {
	return &BookingHandler{escrow: escrow}
}

type customerBookingQuery struct {
	CustomerID    string `form:"customerId" binding:"required"`
	Status        string `form:"status" binding:"omitempty,oneof=pending confirmed in_progress completed cancelled"`
	PaymentStatus string `form:"paymentStatus" binding:"omitempty,oneof=unpaid held_escrow released captured_transferred refunded cancelled"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset        int    `form:"offset" binding:"omitempty,min=0"`
}

// List handles GET /api/bookings
func (h *BookingHandler) List(c *gin.Context) {
	var q customerBookingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return
	}
	if !allowCaller(c, "customerId", q.CustomerID) {
		return
	}

	bookings, err := h.escrow.ListBookings(c.Request.Context(), repository.BookingFilter{
		CustomerID:    q.CustomerID,
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
