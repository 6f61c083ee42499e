package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/gateway"
	"github.com/hooinvest/deposit-engine/internal/observability"
)

// WebhookConfig carries the shared secrets used to authenticate inbound
// notifications. Injected at construction.
type WebhookConfig struct {
	CoinPaymentsIPNSecret  string
	CoinPaymentsMerchantID string
	ConnectPayWebhookSecret string
}

// WebhookService authenticates inbound gateway notifications and feeds the
// verified, mapped result into the reconciliation engine. Verification always
// happens before any parsing touches the reconciler; rejected notifications
// cause zero state changes.
type WebhookService struct {
	reconciler *ReconciliationService
	audit      *AuditService
	cfg        WebhookConfig
}

func NewWebhookService(store QueryStore, cfg WebhookConfig) *WebhookService {
	return &WebhookService{
		reconciler: NewReconciliationService(store),
		audit:      NewAuditService(store),
		cfg:        cfg,
	}
}

// WebhookResult is the acknowledgment-relevant outcome of one notification.
type WebhookResult struct {
	DepositID int64
	Applied   bool

	// AlreadyFinal: the deposit was terminal before this event. Acknowledged
	// so the gateway stops retrying.
	AlreadyFinal bool

	// Unmapped: the gateway status has no canonical translation; logged for
	// manual review and acknowledged without a transition.
	Unmapped bool
}

// HandleCoinPaymentsIPN processes a CoinPayments instant payment
// notification. The HMAC-SHA512 signature is recomputed over the exact raw
// form-encoded body and compared in constant time before anything is parsed.
func (s *WebhookService) HandleCoinPaymentsIPN(ctx context.Context, rawBody []byte, hmacHeader string) (*WebhookResult, error) {
	if hmacHeader == "" {
		return nil, fmt.Errorf("%w: missing Hmac header", domain.ErrInvalidSignature)
	}
	mac := hmac.New(sha512.New, []byte(s.cfg.CoinPaymentsIPNSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(hmacHeader)), []byte(expected)) {
		return nil, domain.ErrInvalidSignature
	}

	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed form body: %v", domain.ErrValidation, err)
	}

	if !subtleCompare(values.Get("merchant"), s.cfg.CoinPaymentsMerchantID) {
		return nil, domain.ErrMerchantMismatch
	}

	depositID, err := strconv.ParseInt(values.Get("custom"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable custom field %q", domain.ErrValidation, values.Get("custom"))
	}
	rawStatus := values.Get("status")
	if _, err := strconv.Atoi(rawStatus); err != nil {
		return nil, fmt.Errorf("%w: unparseable status %q", domain.ErrValidation, rawStatus)
	}

	target, ok := gateway.ParseCoinPaymentsStatus(rawStatus)
	if !ok {
		return s.acknowledgeUnmapped(ctx, depositID, "coinpayments", rawStatus)
	}

	result, err := s.reconciler.Apply(ctx, Transition{
		DepositID:     depositID,
		Target:        target,
		GatewayTxnID:  values.Get("txn_id"),
		SettlementRef: values.Get("txn_id"),
		Source:        "webhook:coinpayments",
	})
	if err != nil {
		return nil, err
	}
	return &WebhookResult{DepositID: depositID, Applied: result.Applied, AlreadyFinal: result.AlreadyFinal}, nil
}

type connectPayWebhookPayload struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	EndToEndID string `json:"end_to_end_id"`
}

// HandleConnectPayWebhook processes a ConnectPay PIX notification,
// authenticated by the shared webhook secret header.
func (s *WebhookService) HandleConnectPayWebhook(ctx context.Context, body []byte, secretHeader string) (*WebhookResult, error) {
	if secretHeader == "" {
		return nil, fmt.Errorf("%w: missing webhook secret header", domain.ErrInvalidSignature)
	}
	if !subtleCompare(secretHeader, s.cfg.ConnectPayWebhookSecret) {
		return nil, domain.ErrInvalidSignature
	}

	var payload connectPayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed json body: %v", domain.ErrValidation, err)
	}
	if payload.ExternalID == "" || payload.Status == "" {
		return nil, fmt.Errorf("%w: external_id and status are required", domain.ErrValidation)
	}

	depositID, err := strconv.ParseInt(payload.ExternalID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable external_id %q", domain.ErrValidation, payload.ExternalID)
	}

	target, ok := gateway.MapConnectPayStatus(payload.Status)
	if !ok {
		return s.acknowledgeUnmapped(ctx, depositID, "connectpay", payload.Status)
	}

	settlementRef := payload.EndToEndID
	if settlementRef == "" {
		settlementRef = payload.ID
	}
	result, err := s.reconciler.Apply(ctx, Transition{
		DepositID:     depositID,
		Target:        target,
		GatewayTxnID:  payload.ID,
		SettlementRef: settlementRef,
		Source:        "webhook:connectpay",
	})
	if err != nil {
		return nil, err
	}
	return &WebhookResult{DepositID: depositID, Applied: result.Applied, AlreadyFinal: result.AlreadyFinal}, nil
}

// acknowledgeUnmapped records a status the engine has no translation for.
// The event is acknowledged so the gateway stops retrying, but nothing
// transitions; operators review via the audit trail.
func (s *WebhookService) acknowledgeUnmapped(ctx context.Context, depositID int64, gatewayName, rawStatus string) (*WebhookResult, error) {
	observability.IncrementUnmappedStatus(gatewayName, rawStatus)
	zap.L().Warn("unmapped gateway status",
		zap.Int64("deposit_id", depositID),
		zap.String("gateway", gatewayName),
		zap.String("raw_status", rawStatus),
	)
	metadata, _ := json.Marshal(map[string]string{"gateway": gatewayName, "raw_status": rawStatus})
	if err := s.audit.Record(ctx, "deposit", depositEntityID(depositID), "status_unmapped", metadata); err != nil {
		zap.L().Error("record unmapped status failed", zap.Error(err))
	}
	return &WebhookResult{DepositID: depositID, Unmapped: true}, nil
}

func subtleCompare(got, want string) bool {
	return hmac.Equal([]byte(got), []byte(want))
}
