package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/hooinvest/deposit-engine/internal/domain"
)

// Account is owned by the external user service; this engine only ever
// credits its balance inside the confirmation transaction.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	BalanceCents int64     `json:"balance_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

// Plan is a catalog entry for an investment product.
type Plan struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	MinValueCents int64     `json:"min_value_cents"`
	DailyPercent  string    `json:"daily_percent"`
	DurationDays  int32     `json:"duration_days"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Deposit is the central entity: a funding attempt against an external
// gateway. Gateway artifacts are opaque to the engine once stored.
type Deposit struct {
	ID          int64                `json:"id"`
	AccountID   uuid.UUID            `json:"account_id"`
	Method      domain.Method        `json:"method"`
	AmountCents int64                `json:"amount_cents"`
	PlanID      *string              `json:"plan_id,omitempty"`
	Status      domain.DepositStatus `json:"status"`

	// GatewayTxnID is globally unique when present; it is the dedup key
	// tying gateway events back to exactly one deposit.
	GatewayTxnID *string `json:"gateway_txn_id,omitempty"`

	// CoinPayments artifacts.
	PaymentAddress *string `json:"payment_address,omitempty"`
	QRCodeURL      *string `json:"qrcode_url,omitempty"`
	StatusURL      *string `json:"status_url,omitempty"`

	// ConnectPay PIX artifacts.
	PixQRCodePayload  *string `json:"pix_qr_code_payload,omitempty"`
	PixQRCodeImageURL *string `json:"pix_qr_code_image_url,omitempty"`
	PixKey            *string `json:"pix_key,omitempty"`
	PixKeyType        *string `json:"pix_key_type,omitempty"`
	PixBeneficiary    *string `json:"pix_beneficiary_name,omitempty"`

	// TransactionHash is the settlement reference, populated on CONFIRMED.
	TransactionHash *string `json:"transaction_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Investment is created exactly once per confirmed plan-bearing deposit,
// inside the same transaction that credits the balance.
type Investment struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	PlanID      string    `json:"plan_id"`
	DepositID   int64     `json:"deposit_id"`
	AmountCents int64     `json:"amount_cents"`
	Code        string    `json:"code"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
