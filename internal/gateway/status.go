package gateway

import (
	"strconv"

	"github.com/hooinvest/deposit-engine/internal/domain"
)

// Per-gateway status tables. The reconciliation engine never sees gateway
// vocabulary; unmapped statuses translate to ok=false and are logged for
// manual review, not silently dropped.

// coinPaymentsStatuses covers the IPN numeric codes the engine acts on.
// 100 and 2 mean the payment is complete and irreversible; 1 means funds
// were received and are awaiting confirmations; 0 means still waiting.
var coinPaymentsStatuses = map[int]domain.DepositStatus{
	100: domain.StatusConfirmed,
	2:   domain.StatusConfirmed,
	1:   domain.StatusPaid,
	0:   domain.StatusPending,
}

// MapCoinPaymentsStatus translates a CoinPayments IPN status code. Any
// negative code is an error state; unlisted positive codes are unmapped.
func MapCoinPaymentsStatus(code int) (domain.DepositStatus, bool) {
	if status, ok := coinPaymentsStatuses[code]; ok {
		return status, true
	}
	if code < 0 {
		return domain.StatusFailed, true
	}
	return "", false
}

// ParseCoinPaymentsStatus parses the raw status field and maps it.
func ParseCoinPaymentsStatus(raw string) (domain.DepositStatus, bool) {
	code, err := strconv.Atoi(raw)
	if err != nil {
		return "", false
	}
	return MapCoinPaymentsStatus(code)
}

var connectPayStatuses = map[string]domain.DepositStatus{
	"AUTHORIZED": domain.StatusConfirmed,
	"PAID":       domain.StatusPaid,
	"PENDING":    domain.StatusPending,
	"FAILED":     domain.StatusFailed,
	"EXPIRED":    domain.StatusExpired,
}

// MapConnectPayStatus translates a ConnectPay transaction status. CHARGEBACK
// and IN_DISPUTE stay unmapped: log-only until a review status exists.
func MapConnectPayStatus(raw string) (domain.DepositStatus, bool) {
	status, ok := connectPayStatuses[raw]
	return status, ok
}
