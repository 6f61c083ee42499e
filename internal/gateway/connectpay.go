package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// ConnectPayConfig holds credentials for the PIX gateway.
type ConnectPayConfig struct {
	BaseURL   string
	APISecret string
}

// ConnectPayGateway wraps the ConnectPay PIX API (JSON, api-secret header).
type ConnectPayGateway struct {
	cfg        ConnectPayConfig
	httpClient *http.Client
}

func NewConnectPayGateway(cfg ConnectPayConfig) *ConnectPayGateway {
	return &ConnectPayGateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type connectPayItem struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type connectPayCustomer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document,omitempty"`
}

type connectPayCreateRequest struct {
	ExternalID    string             `json:"external_id"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	PaymentMethod string             `json:"payment_method"`
	WebhookURL    string             `json:"webhook_url"`
	Items         []connectPayItem   `json:"items"`
	Customer      connectPayCustomer `json:"customer"`
	IP            string             `json:"ip"`
}

type connectPayPix struct {
	QRCodePayload  string `json:"qr_code_payload"`
	QRCodeImageURL string `json:"qr_code_image_url"`
	Key            string `json:"key"`
	KeyType        string `json:"key_type"`
	Beneficiary    string `json:"beneficiary_name"`
}

type connectPayTransaction struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Pix    connectPayPix `json:"pix"`
}

// CreateIntent registers a PIX charge for the deposit. The deposit id is sent
// as external_id and echoed back on webhooks.
func (g *ConnectPayGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Artifacts, error) {
	amount := domain.CentsToDecimal(req.AmountCents)
	payload := connectPayCreateRequest{
		ExternalID:    strconv.FormatInt(req.DepositID, 10),
		TotalAmount:   amount,
		PaymentMethod: "PIX",
		WebhookURL:    req.CallbackURL,
		Items: []connectPayItem{
			{Title: "Account deposit", Quantity: 1, UnitPrice: amount},
		},
		Customer: connectPayCustomer{
			Name:     req.PayerName,
			Email:    req.PayerEmail,
			Document: req.PayerTaxID,
		},
		IP: req.ClientIP,
	}

	var result connectPayTransaction
	if err := g.call(ctx, http.MethodPost, "/v1/transactions", payload, &result); err != nil {
		return nil, err
	}
	return &Artifacts{
		TxnID:             result.ID,
		PixQRCodePayload:  result.Pix.QRCodePayload,
		PixQRCodeImageURL: result.Pix.QRCodeImageURL,
		PixKey:            result.Pix.Key,
		PixKeyType:        result.Pix.KeyType,
		PixBeneficiary:    result.Pix.Beneficiary,
	}, nil
}

// QueryStatus fetches the transaction status ("AUTHORIZED", "PENDING", ...).
func (g *ConnectPayGateway) QueryStatus(ctx context.Context, gatewayTxnID string) (string, error) {
	var result connectPayTransaction
	if err := g.call(ctx, http.MethodGet, "/v1/transactions/"+gatewayTxnID, nil, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

func (g *ConnectPayGateway) call(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode connectpay payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build connectpay request: %w", err)
	}
	httpReq.Header.Set("api-secret", g.cfg.APISecret)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: connectpay returned %d: %s", domain.ErrGatewayUnavailable, resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: decode connectpay response: %v", domain.ErrGatewayUnavailable, err)
	}
	return nil
}
