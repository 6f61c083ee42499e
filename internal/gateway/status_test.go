package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hooinvest/deposit-engine/internal/domain"
)

func TestMapCoinPaymentsStatus(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		want   domain.DepositStatus
		mapped bool
	}{
		{"complete", 100, domain.StatusConfirmed, true},
		{"queued for nightly payout", 2, domain.StatusConfirmed, true},
		{"funds received", 1, domain.StatusPaid, true},
		{"waiting", 0, domain.StatusPending, true},
		{"cancelled", -1, domain.StatusFailed, true},
		{"refunded", -2, domain.StatusFailed, true},
		{"unlisted positive", 5, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MapCoinPaymentsStatus(tt.code)
			require.Equal(t, tt.mapped, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseCoinPaymentsStatus(t *testing.T) {
	got, ok := ParseCoinPaymentsStatus("100")
	require.True(t, ok)
	require.Equal(t, domain.StatusConfirmed, got)

	_, ok = ParseCoinPaymentsStatus("not-a-number")
	require.False(t, ok)

	got, ok = ParseCoinPaymentsStatus("-5")
	require.True(t, ok)
	require.Equal(t, domain.StatusFailed, got)
}

func TestMapConnectPayStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   domain.DepositStatus
		mapped bool
	}{
		{"AUTHORIZED", domain.StatusConfirmed, true},
		{"PAID", domain.StatusPaid, true},
		{"PENDING", domain.StatusPending, true},
		{"FAILED", domain.StatusFailed, true},
		{"EXPIRED", domain.StatusExpired, true},
		{"CHARGEBACK", "", false},
		{"IN_DISPUTE", "", false},
		{"authorized", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := MapConnectPayStatus(tt.raw)
			require.Equal(t, tt.mapped, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
