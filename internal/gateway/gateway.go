package gateway

import (
	"context"
)

// IntentRequest carries everything a gateway needs to open a payment intent.
// DepositID doubles as the correlation token echoed back in notifications.
type IntentRequest struct {
	DepositID   int64
	AmountCents int64
	PayerEmail  string
	PayerName   string
	PayerTaxID  string
	ClientIP    string
	CallbackURL string
}

// Artifacts is the method-specific payload returned by a successful
// create-transaction call. Fields not applicable to a gateway stay empty.
type Artifacts struct {
	TxnID string

	// Crypto (CoinPayments).
	PaymentAddress string
	QRCodeURL      string
	StatusURL      string

	// PIX (ConnectPay).
	PixQRCodePayload  string
	PixQRCodeImageURL string
	PixKey            string
	PixKeyType        string
	PixBeneficiary    string
}

// Gateway is the common capability both payment processors are wrapped
// behind. QueryStatus returns the raw gateway status vocabulary; mapping to
// the canonical enum happens in the status tables, never in callers.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Artifacts, error)
	QueryStatus(ctx context.Context, gatewayTxnID string) (string, error)
}
