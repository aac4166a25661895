package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
)

type processPaymentRequest struct {
	OrderID       string           `json:"order_id"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
	PaymentMethod string           `json:"payment_method"`
}

type refundPaymentRequest struct {
	Reason string           `json:"reason"`
	Amount *decimal.Decimal `json:"amount"`
}

type paymentResponse struct {
	ID               string         `json:"id"`
	OrderID          string         `json:"order_id"`
	Amount           string         `json:"amount"`
	Currency         string         `json:"currency"`
	Status           string         `json:"status"`
	PaymentMethod    string         `json:"payment_method"`
	GatewayReference *string        `json:"gateway_reference"`
	ErrorMessage     *string        `json:"error_message"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func newPaymentResponse(p paymentdomain.Payment) paymentResponse {
	metadata := map[string]any(p.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return paymentResponse{
		ID:               p.ID.String(),
		OrderID:          p.OrderID,
		Amount:           p.Amount.StringFixed(2),
		Currency:         p.Currency,
		Status:           string(p.Status),
		PaymentMethod:    string(p.PaymentMethod),
		GatewayReference: p.GatewayReference,
		ErrorMessage:     p.ErrorMessage,
		Metadata:         metadata,
		CreatedAt:        p.CreatedAt.UTC(),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}
}

func (s *Server) ProcessPayment(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount == nil {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount is required"))
		return
	}

	orderID := strings.TrimSpace(req.OrderID)
	c.Set("order_id", orderID)

	resp, err := s.paymentSvc.ProcessPayment(c.Request.Context(), paymentdomain.ProcessPaymentRequest{
		OrderID:       orderID,
		Amount:        *req.Amount,
		Currency:      req.Currency,
		PaymentMethod: paymentdomain.Method(strings.TrimSpace(req.PaymentMethod)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": newPaymentResponse(resp)})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	resp, err := s.paymentSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("order_id", resp.OrderID)
	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}

func (s *Server) ListPaymentsByOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	c.Set("order_id", orderID)

	payments, err := s.paymentSvc.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		data = append(data, newPaymentResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req refundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundRequest{
		PaymentID: c.Param("id"),
		Reason:    req.Reason,
		Amount:    req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("order_id", resp.OrderID)
	c.JSON(http.StatusOK, gin.H{"data": newPaymentResponse(resp)})
}
