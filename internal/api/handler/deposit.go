package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/models"
	"github.com/hooinvest/deposit-engine/internal/service"
)

// DepositHandler handles HTTP requests for deposit intents.
type DepositHandler struct {
	depositSvc *service.DepositService
}

// NewDepositHandler creates a new DepositHandler instance.
func NewDepositHandler(depositSvc *service.DepositService) *DepositHandler {
	return &DepositHandler{depositSvc: depositSvc}
}

// CreateDepositRequest represents the request body for opening a deposit.
type CreateDepositRequest struct {
	Amount     string  `json:"amount"`
	Method     string  `json:"method"`
	PlanID     *string `json:"plan_id,omitempty"`
	PayerName  string  `json:"payer_name,omitempty"`
	PayerTaxID string  `json:"payer_tax_id,omitempty"`
}

type depositResponse struct {
	*models.Deposit
	Amount string `json:"amount"`
}

func renderDeposit(d *models.Deposit) depositResponse {
	return depositResponse{Deposit: d, Amount: domain.FormatAmount(d.AmountCents)}
}

// CreateDeposit handles POST /v1/deposits
// It opens a deposit intent against the gateway matching the method and
// returns 201 with the payment artifacts.
func (h *DepositHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, err := requestAccount(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	amountCents, err := domain.ParseAmountCents(strings.TrimSpace(req.Amount))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount must be a positive decimal")
		return
	}
	method := domain.Method(strings.ToUpper(strings.TrimSpace(req.Method)))
	if method != domain.MethodCrypto && method != domain.MethodPix {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-method", "method must be USDT_BEP20 or PIX")
		return
	}
	if req.PlanID != nil && strings.TrimSpace(*req.PlanID) == "" {
		req.PlanID = nil
	}

	deposit, err := h.depositSvc.CreateDeposit(r.Context(), service.CreateDepositRequest{
		AccountID:   accountID,
		AmountCents: amountCents,
		Method:      method,
		PlanID:      req.PlanID,
		PayerName:   strings.TrimSpace(req.PayerName),
		PayerTaxID:  strings.TrimSpace(req.PayerTaxID),
		ClientIP:    clientIP(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			RespondError(w, r, http.StatusBadRequest, "request/invalid-deposit", err.Error())
		case errors.Is(err, domain.ErrAccountNotFound):
			RespondError(w, r, http.StatusNotFound, "account/not-found", "Account not found")
		case errors.Is(err, domain.ErrPlanNotFound):
			RespondError(w, r, http.StatusBadRequest, "plan/not-found", "Plan not found or inactive")
		case errors.Is(err, domain.ErrAmountBelowMinimum):
			RespondError(w, r, http.StatusBadRequest, "deposit/amount-below-minimum", err.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable):
			RespondError(w, r, http.StatusBadGateway, "gateway/unavailable", "Payment gateway unavailable")
		default:
			if status, problemType, message, ok := mapDBError(err); ok {
				RespondError(w, r, status, problemType, message)
				return
			}
			zap.L().Error("create deposit failed", zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "deposit/create-failed", "Failed to create deposit")
		}
		return
	}

	RespondJSON(w, http.StatusCreated, renderDeposit(deposit))
}

// GetDeposit handles GET /v1/deposits/{id}
// It returns a deposit owned by the authenticated account.
func (h *DepositHandler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, err := requestAccount(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	depositID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-deposit-id", "Invalid deposit ID")
		return
	}

	deposit, err := h.depositSvc.GetDeposit(r.Context(), accountID, depositID)
	if err != nil {
		if errors.Is(err, domain.ErrDepositNotFound) {
			RespondError(w, r, http.StatusNotFound, "deposit/not-found", "Deposit not found")
			return
		}
		zap.L().Error("get deposit failed", zap.Error(err), zap.Int64("deposit_id", depositID))
		RespondError(w, r, http.StatusInternalServerError, "deposit/read-failed", "Failed to get deposit")
		return
	}

	RespondJSON(w, http.StatusOK, renderDeposit(deposit))
}

// ListDeposits handles GET /v1/deposits
// It lists the authenticated account's deposits, newest first.
func (h *DepositHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	accountID, err := requestAccount(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	limit := int32(50)
	offset := int32(0)
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a positive integer")
			return
		}
		limit = int32(parsed)
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
			return
		}
		offset = int32(parsed)
	}

	deposits, err := h.depositSvc.ListDeposits(r.Context(), accountID, limit, offset)
	if err != nil {
		zap.L().Error("list deposits failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "deposit/list-failed", "Failed to list deposits")
		return
	}

	items := make([]depositResponse, 0, len(deposits))
	for i := range deposits {
		items = append(items, renderDeposit(&deposits[i]))
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
