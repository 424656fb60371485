package payment

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-payments/internal/common"
)

// Handler exposes the payment HTTP endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// NewHandler wires a Handler with a JSON-aware validator.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, Validate: common.NewValidator()}
}

type createOrderReq struct {
	Amount  *float64 `json:"amount" validate:"required"`
	OrderID string   `json:"orderId" validate:"omitempty,max=64"`
}

type createOrderResp struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

type verifyReq struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
	OrderID           string `json:"orderId" validate:"omitempty,max=64"`
}

type verifyResp struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PaymentID string `json:"paymentId"`
}

type statusResp struct {
	Success       bool       `json:"success"`
	OrderID       string     `json:"orderId"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	PaymentResult any        `json:"paymentResult,omitempty"`
}

// Key returns the public key id used by the client checkout.
func (h *Handler) Key(w http.ResponseWriter, r *http.Request) {
	keyID, err := h.Svc.KeyID()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "keyId": keyID})
}

// CreateOrder opens a provider order for the authenticated caller.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "login required", nil)
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		if req.Amount == nil {
			common.WriteError(w, ErrInvalidAmount)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request", common.FieldErrors(err))
		return
	}
	res, err := h.Svc.CreateOrder(r.Context(), CreateOrderInput{
		Amount:  *req.Amount,
		OrderID: strings.TrimSpace(req.OrderID),
		UserID:  userID,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, createOrderResp{
		Success:  true,
		OrderID:  res.ProviderOrderID,
		Amount:   res.AmountMinor,
		Currency: res.Currency,
		KeyID:    res.KeyID,
	})
}

// Verify authenticates the checkout callback and settles the order.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "login required", nil)
		return
	}
	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		if missingVerificationField(req) {
			common.WriteError(w, ErrMissingVerificationData)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request", common.FieldErrors(err))
		return
	}
	res, err := h.Svc.Verify(r.Context(), VerifyInput{
		ProviderOrderID:   req.RazorpayOrderID,
		ProviderPaymentID: req.RazorpayPaymentID,
		Signature:         req.RazorpaySignature,
		OrderID:           strings.TrimSpace(req.OrderID),
		UserID:            userID,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, verifyResp{
		Success:   true,
		Message:   "Payment verified successfully",
		PaymentID: res.PaymentID,
	})
}

// Status reports the payment state of one of the caller's orders.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "login required", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	res, err := h.Svc.Status(r.Context(), orderID, userID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	resp := statusResp{Success: true, OrderID: res.OrderID, Status: string(res.State), PaidAt: res.PaidAt}
	if res.PaymentResult != nil {
		resp.PaymentResult = res.PaymentResult
	}
	common.JSON(w, http.StatusOK, resp)
}

func missingVerificationField(req verifyReq) bool {
	return req.RazorpayOrderID == "" || req.RazorpayPaymentID == "" || req.RazorpaySignature == ""
}
