package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hooinvest/deposit-engine/internal/domain"
)

const defaultCoinPaymentsAPIURL = "https://www.coinpayments.net/api.php"

// CoinPaymentsConfig holds credentials for the crypto gateway. Injected at
// construction; never read from ambient state.
type CoinPaymentsConfig struct {
	APIURL     string
	PublicKey  string
	PrivateKey string
}

// CoinPaymentsGateway wraps the CoinPayments HTTP API. Requests are
// form-encoded and signed with HMAC-SHA512 over the exact encoded body.
type CoinPaymentsGateway struct {
	cfg        CoinPaymentsConfig
	httpClient *http.Client
}

func NewCoinPaymentsGateway(cfg CoinPaymentsConfig) *CoinPaymentsGateway {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultCoinPaymentsAPIURL
	}
	return &CoinPaymentsGateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type coinPaymentsEnvelope struct {
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type coinPaymentsTransaction struct {
	TxnID     string `json:"txn_id"`
	Address   string `json:"address"`
	QRCodeURL string `json:"qrcode_url"`
	StatusURL string `json:"status_url"`
}

type coinPaymentsTxInfo struct {
	Status     int    `json:"status"`
	StatusText string `json:"status_text"`
}

// CreateIntent opens a USDT (BEP20) payment for the deposit. The deposit id
// rides in the `custom` field and comes back on every IPN.
func (g *CoinPaymentsGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Artifacts, error) {
	params := url.Values{}
	params.Set("cmd", "create_transaction")
	params.Set("amount", domain.FormatAmount(req.AmountCents))
	params.Set("currency1", "USD")
	params.Set("currency2", "USDT.BEP20")
	params.Set("buyer_email", req.PayerEmail)
	params.Set("ipn_url", req.CallbackURL)
	params.Set("custom", strconv.FormatInt(req.DepositID, 10))

	var result coinPaymentsTransaction
	if err := g.call(ctx, params, &result); err != nil {
		return nil, err
	}
	return &Artifacts{
		TxnID:          result.TxnID,
		PaymentAddress: result.Address,
		QRCodeURL:      result.QRCodeURL,
		StatusURL:      result.StatusURL,
	}, nil
}

// QueryStatus fetches the numeric payment status for a transaction and
// returns it in raw form for the status table to translate.
func (g *CoinPaymentsGateway) QueryStatus(ctx context.Context, gatewayTxnID string) (string, error) {
	params := url.Values{}
	params.Set("cmd", "get_tx_info")
	params.Set("txid", gatewayTxnID)

	var result coinPaymentsTxInfo
	if err := g.call(ctx, params, &result); err != nil {
		return "", err
	}
	return strconv.Itoa(result.Status), nil
}

func (g *CoinPaymentsGateway) call(ctx context.Context, params url.Values, result any) error {
	params.Set("version", "1")
	params.Set("format", "json")
	params.Set("key", g.cfg.PublicKey)
	body := params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build coinpayments request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("HMAC", signCoinPayments(g.cfg.PrivateKey, []byte(body)))

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: coinpayments returned %d: %s", domain.ErrGatewayUnavailable, resp.StatusCode, snippet)
	}

	var envelope coinPaymentsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode coinpayments response: %v", domain.ErrGatewayUnavailable, err)
	}
	if envelope.Error != "ok" {
		return fmt.Errorf("%w: coinpayments error: %s", domain.ErrGatewayUnavailable, envelope.Error)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("%w: decode coinpayments result: %v", domain.ErrGatewayUnavailable, err)
	}
	return nil
}

func signCoinPayments(privateKey string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(privateKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
