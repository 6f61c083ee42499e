package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/observability"
	"github.com/hooinvest/deposit-engine/internal/service"
)

// WebhookHandler handles incoming payment notifications from the gateways.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandleCoinPaymentsIPN handles POST /v1/webhooks/coinpayments
// The raw form body is read before any parsing so the HMAC covers the exact
// bytes the gateway signed.
func (h *WebhookHandler) HandleCoinPaymentsIPN(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Error("read ipn body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	result, err := h.webhookSvc.HandleCoinPaymentsIPN(r.Context(), body, r.Header.Get("Hmac"))
	h.respond(w, r, "coinpayments", result, err)
}

// HandleConnectPayWebhook handles POST /v1/webhooks/connectpay
func (h *WebhookHandler) HandleConnectPayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	result, err := h.webhookSvc.HandleConnectPayWebhook(r.Context(), body, r.Header.Get("x-webhook-secret"))
	h.respond(w, r, "connectpay", result, err)
}

func (h *WebhookHandler) respond(w http.ResponseWriter, r *http.Request, gatewayName string, result *service.WebhookResult, err error) {
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSignature):
			observability.IncrementWebhookRejection(gatewayName, "invalid_signature")
			RespondError(w, r, http.StatusForbidden, "webhook/invalid-signature", "Invalid signature")
		case errors.Is(err, domain.ErrMerchantMismatch):
			observability.IncrementWebhookRejection(gatewayName, "merchant_mismatch")
			RespondError(w, r, http.StatusForbidden, "webhook/merchant-mismatch", "Unknown merchant")
		case errors.Is(err, domain.ErrValidation):
			observability.IncrementWebhookRejection(gatewayName, "malformed")
			RespondError(w, r, http.StatusBadRequest, "webhook/malformed", "Malformed notification")
		case errors.Is(err, domain.ErrDepositNotFound):
			observability.IncrementWebhookRejection(gatewayName, "unknown_deposit")
			RespondError(w, r, http.StatusNotFound, "deposit/not-found", "Unknown deposit")
		default:
			zap.L().Error("process webhook failed", zap.Error(err), zap.String("gateway", gatewayName))
			RespondError(w, r, http.StatusInternalServerError, "webhook/processing-failed", "Failed to process notification")
		}
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"deposit_id":    result.DepositID,
		"applied":       result.Applied,
		"already_final": result.AlreadyFinal,
		"unmapped":      result.Unmapped,
	})
}
