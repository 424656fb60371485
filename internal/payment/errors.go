package payment

import (
	"net/http"

	"github.com/noah-isme/toko-payments/internal/common"
)

// Errors returned by the payment flow. They render through common.WriteError
// and match with errors.Is even after WithCause attaches an underlying error.
var (
	ErrInvalidAmount           = common.NewAppError("INVALID_AMOUNT", "amount must be a positive number", http.StatusBadRequest, nil)
	ErrConfiguration           = common.NewAppError("PAYMENT_NOT_CONFIGURED", "payment provider is not configured", http.StatusInternalServerError, nil)
	ErrProvider                = common.NewAppError("PAYMENT_PROVIDER_ERROR", "failed to create payment order", http.StatusBadGateway, nil)
	ErrMissingVerificationData = common.NewAppError("MISSING_VERIFICATION_DATA", "missing payment verification data", http.StatusBadRequest, nil)
	ErrInvalidSignature        = common.NewAppError("INVALID_SIGNATURE", "payment verification failed: invalid signature", http.StatusBadRequest, nil)
	ErrOrderNotFound           = common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, nil)
	ErrSettlement              = common.NewAppError("SETTLEMENT_FAILED", "payment verified but the order could not be updated", http.StatusInternalServerError, nil)
	ErrInvalidWebhook          = common.NewAppError("INVALID_WEBHOOK", "invalid webhook payload", http.StatusBadRequest, nil)
)
