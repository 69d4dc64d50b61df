package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/services"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/utils"
)

// BookingAPI is implemented by services.BookingService.
type BookingAPI interface {
	Checkout(ctx context.Context, studioSlug string, req *models.CheckoutRequest) (*models.CheckoutResponse, error)
	Confirm(ctx context.Context, studioSlug string, req *models.ConfirmRequest) (*models.ConfirmResponse, error)
	GetPayment(ctx context.Context, studioSlug, paymentID string) (*models.Payment, error)
	Reconciliation(ctx context.Context, studioSlug string) ([]*models.Payment, error)
}

type BookingHandler struct {
	bookings BookingAPI
	log      *logger.Logger
}

func NewBookingHandler(bookings BookingAPI, log *logger.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, log: log}
}

// CreatePaymentIntent starts checkout for a class session.
func (h *BookingHandler) CreatePaymentIntent(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(bindMessage(err)))
		return
	}

	resp, err := h.bookings.Checkout(c.Request.Context(), c.Param("studio"), &req)
	if err != nil {
		h.fail(c, err, "Failed to create payment")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmPayment settles a completed payment into a booking. Safe to retry.
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(services.ErrMissingFields.Error()))
		return
	}

	resp, err := h.bookings.Confirm(c.Request.Context(), c.Param("studio"), &req)
	if err != nil {
		h.fail(c, err, "Failed to confirm booking")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) GetPaymentStatus(c *gin.Context) {
	payment, err := h.bookings.GetPayment(c.Request.Context(), c.Param("studio"), c.Param("paymentId"))
	if err != nil {
		h.fail(c, err, "Failed to retrieve payment status")
		return
	}

	amount, _ := payment.MajorAmount().Float64()
	c.JSON(http.StatusOK, models.PaymentStatusResponse{
		PaymentID:       payment.ID,
		PaymentIntentID: payment.GatewayIntentID,
		Status:          payment.Status,
		Amount:          amount,
		Currency:        payment.Currency,
		BookingType:     payment.BookingType,
		RefundID:        payment.RefundID,
		RefundReason:    payment.RefundReason,
		RefundedAt:      payment.RefundedAt,
	})
}

// Reconciliation lists charged payments whose compensating refund failed.
func (h *BookingHandler) Reconciliation(c *gin.Context) {
	payments, err := h.bookings.Reconciliation(c.Request.Context(), c.Param("studio"))
	if err != nil {
		h.fail(c, err, "Failed to build reconciliation report")
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(payments), "payments": payments})
}

// bindMessage names the first rule a request body broke.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "email":
			return services.ErrInvalidEmail.Error()
		case "max":
			if verrs[0].Field() == "TrackingCode" {
				return services.ErrTrackingCodeTooLong.Error()
			}
		}
	}
	return services.ErrMissingFields.Error()
}

// fail maps the service error taxonomy onto HTTP statuses.
func (h *BookingHandler) fail(c *gin.Context, err error, fallback string) {
	msg := services.PublicMessage(err)

	switch services.KindOf(err) {
	case services.KindNotFound:
		c.JSON(http.StatusNotFound, utils.ErrorResponse(msg))
		return
	case services.KindValidation, services.KindConflict:
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(msg))
		return
	}

	h.log.Error("API", c.Request.Method+" "+c.FullPath()+": "+err.Error())
	if msg == "" {
		msg = fallback
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, utils.ErrorResponse(msg))
}
