package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/repository"
)

const (
	testIPNSecret     = "ipn-secret"
	testMerchantID    = "merchant-123"
	testWebhookSecret = "connectpay-secret"
)

func newTestWebhookService(db *repository.Store) *WebhookService {
	return NewWebhookService(db, WebhookConfig{
		CoinPaymentsIPNSecret:   testIPNSecret,
		CoinPaymentsMerchantID:  testMerchantID,
		ConnectPayWebhookSecret: testWebhookSecret,
	})
}

func ipnBody(depositID int64, txnID, status string) []byte {
	values := url.Values{}
	values.Set("merchant", testMerchantID)
	values.Set("txn_id", txnID)
	values.Set("custom", fmt.Sprintf("%d", depositID))
	values.Set("status", status)
	values.Set("amount1", "150.00")
	values.Set("currency1", "USD")
	return []byte(values.Encode())
}

func signIPN(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testIPNSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandleCoinPaymentsIPNConfirmsDeposit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := newTestWebhookService(store)

	account := createTestAccount(t, queries, "ipn@example.com")
	deposit := createTestDeposit(t, queries, account.ID, 15_000, domain.MethodCrypto, planRef("PANDORA"), "CPTX-900")

	body := ipnBody(deposit.ID, "CPTX-900", "100")
	result, err := svc.HandleCoinPaymentsIPN(ctx, body, signIPN(body))
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, deposit.ID, result.DepositID)

	updated, err := queries.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(15_000), updated.BalanceCents)

	inv, err := queries.GetInvestmentByDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.Equal(t, "PANDORA", inv.PlanID)

	// Redelivery is acknowledged without a second credit.
	replay, err := svc.HandleCoinPaymentsIPN(ctx, body, signIPN(body))
	require.NoError(t, err)
	require.False(t, replay.Applied)
	require.True(t, replay.AlreadyFinal)

	final, err := queries.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(15_000), final.BalanceCents)
}

func TestHandleCoinPaymentsIPNRejectsTamperedBody(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := newTestWebhookService(store)

	account := createTestAccount(t, queries, "tamper@example.com")
	deposit := createTestDeposit(t, queries, account.ID, 15_000, domain.MethodCrypto, planRef("PANDORA"), "CPTX-901")

	body := ipnBody(deposit.ID, "CPTX-901", "100")
	signature := signIPN(body)
	tampered := ipnBody(deposit.ID, "CPTX-901", "100")
	tampered = append(tampered, []byte("&amount2=999")...)

	_, err := svc.HandleCoinPaymentsIPN(ctx, tampered, signature)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	// Rejected before parsing: zero state changes.
	current, err := queries.GetDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, current.Status)
}

func TestHandleCoinPaymentsIPNMissingSignature(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := newTestWebhookService(repository.NewStore(db))

	_, err := svc.HandleCoinPaymentsIPN(context.Background(), ipnBody(1, "CPTX-902", "100"), "")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestHandleCoinPaymentsIPNRejectsWrongMerchant(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := newTestWebhookService(repository.NewStore(db))

	values := url.Values{}
	values.Set("merchant", "someone-else")
	values.Set("txn_id", "CPTX-903")
	values.Set("custom", "1")
	values.Set("status", "100")
	body := []byte(values.Encode())

	_, err := svc.HandleCoinPaymentsIPN(context.Background(), body, signIPN(body))
	require.ErrorIs(t, err, domain.ErrMerchantMismatch)
}

func TestHandleCoinPaymentsIPNUnknownDeposit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := newTestWebhookService(repository.NewStore(db))

	body := ipnBody(424242, "CPTX-904", "100")
	_, err := svc.HandleCoinPaymentsIPN(context.Background(), body, signIPN(body))
	require.ErrorIs(t, err, domain.ErrDepositNotFound)
}

func TestHandleCoinPaymentsIPNUnmappedStatusAcknowledged(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := newTestWebhookService(store)

	account := createTestAccount(t, queries, "unmapped@example.com")
	deposit := createTestDeposit(t, queries, account.ID, 15_000, domain.MethodCrypto, planRef("PANDORA"), "CPTX-905")

	body := ipnBody(deposit.ID, "CPTX-905", "5")
	result, err := svc.HandleCoinPaymentsIPN(ctx, body, signIPN(body))
	require.NoError(t, err)
	require.True(t, result.Unmapped)
	require.False(t, result.Applied)

	current, err := queries.GetDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, current.Status)
}

func TestHandleCoinPaymentsIPNNegativeStatusFails(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := newTestWebhookService(store)

	account := createTestAccount(t, queries, "negative@example.com")
	deposit := createTestDeposit(t, queries, account.ID, 5_000, domain.MethodCrypto, nil, "CPTX-906")

	body := ipnBody(deposit.ID, "CPTX-906", "-1")
	result, err := svc.HandleCoinPaymentsIPN(ctx, body, signIPN(body))
	require.NoError(t, err)
	require.True(t, result.Applied)

	current, err := queries.GetDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, current.Status)

	updated, err := queries.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), updated.BalanceCents)
}

func TestHandleConnectPayWebhookAuthorizedConfirms(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := newTestWebhookService(store)

	account := createTestAccount(t, queries, "pix@example.com")
	deposit := createTestDeposit(t, queries, account.ID, 15_000, domain.MethodPix, planRef("PANDORA"), "CNPX-900")

	body, err := json.Marshal(map[string]string{
		"id":            "CNPX-900",
		"external_id":   fmt.Sprintf("%d", deposit.ID),
		"status":        "AUTHORIZED",
		"end_to_end_id": "E2E-900",
	})
	require.NoError(t, err)

	result, err := svc.HandleConnectPayWebhook(ctx, body, testWebhookSecret)
	require.NoError(t, err)
	require.True(t, result.Applied)

	updated, err := queries.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(15_000), updated.BalanceCents)

	confirmed, err := queries.GetDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.TransactionHash)
	require.Equal(t, "E2E-900", *confirmed.TransactionHash)
}

func TestHandleConnectPayWebhookRejectsBadSecret(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := newTestWebhookService(repository.NewStore(db))

	body, _ := json.Marshal(map[string]string{"id": "CNPX-901", "external_id": "1", "status": "AUTHORIZED"})
	_, err := svc.HandleConnectPayWebhook(context.Background(), body, "wrong-secret")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = svc.HandleConnectPayWebhook(context.Background(), body, "")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestHandleConnectPayWebhookMalformedBody(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := newTestWebhookService(repository.NewStore(db))

	_, err := svc.HandleConnectPayWebhook(context.Background(), []byte("{not-json"), testWebhookSecret)
	require.ErrorIs(t, err, domain.ErrValidation)

	body, _ := json.Marshal(map[string]string{"id": "CNPX-902", "status": "AUTHORIZED"})
	_, err = svc.HandleConnectPayWebhook(context.Background(), body, testWebhookSecret)
	require.ErrorIs(t, err, domain.ErrValidation)
}
