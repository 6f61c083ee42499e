package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/gateway"
	"github.com/hooinvest/deposit-engine/internal/repository"
)

// fakeGateway records calls and returns canned responses.
type fakeGateway struct {
	artifacts   *gateway.Artifacts
	createErr   error
	statuses    map[string]string
	statusErr   error
	lastRequest *gateway.IntentRequest
}

func (f *fakeGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.Artifacts, error) {
	f.lastRequest = &req
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.artifacts != nil {
		return f.artifacts, nil
	}
	return &gateway.Artifacts{TxnID: fmt.Sprintf("FAKE-%d", req.DepositID)}, nil
}

func (f *fakeGateway) QueryStatus(_ context.Context, txnID string) (string, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	status, ok := f.statuses[txnID]
	if !ok {
		return "", errors.New("unknown transaction")
	}
	return status, nil
}

func TestCreateDepositCryptoStoresArtifacts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)

	crypto := &fakeGateway{artifacts: &gateway.Artifacts{
		TxnID:          "CPTX-1000",
		PaymentAddress: "0xabc123",
		QRCodeURL:      "https://example.com/qr.png",
		StatusURL:      "https://example.com/status",
	}}
	pix := &fakeGateway{}
	svc := NewDepositService(store, crypto, pix, "https://api.example.com")

	account := createTestAccount(t, queries, "create-crypto@example.com")

	deposit, err := svc.CreateDeposit(ctx, CreateDepositRequest{
		AccountID:   account.ID,
		AmountCents: 15_000,
		Method:      domain.MethodCrypto,
		PlanID:      planRef("PANDORA"),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, deposit.Status)
	require.NotNil(t, deposit.GatewayTxnID)
	require.Equal(t, "CPTX-1000", *deposit.GatewayTxnID)
	require.NotNil(t, deposit.PaymentAddress)
	require.Equal(t, "0xabc123", *deposit.PaymentAddress)
	require.NotNil(t, deposit.QRCodeURL)

	require.NotNil(t, crypto.lastRequest)
	require.Equal(t, deposit.ID, crypto.lastRequest.DepositID)
	require.Equal(t, "https://api.example.com/v1/webhooks/coinpayments", crypto.lastRequest.CallbackURL)
	require.Equal(t, account.Email, crypto.lastRequest.PayerEmail)
}

func TestCreateDepositPixStoresArtifacts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)

	crypto := &fakeGateway{}
	pix := &fakeGateway{artifacts: &gateway.Artifacts{
		TxnID:             "CNPX-1000",
		PixQRCodePayload:  "00020126pixpayload",
		PixQRCodeImageURL: "https://example.com/pix.png",
		PixKey:            "deposits@hooinvest.com",
		PixKeyType:        "EMAIL",
		PixBeneficiary:    "Hooinvest Pagamentos",
	}}
	svc := NewDepositService(store, crypto, pix, "https://api.example.com")

	account := createTestAccount(t, queries, "create-pix@example.com")

	deposit, err := svc.CreateDeposit(ctx, CreateDepositRequest{
		AccountID:   account.ID,
		AmountCents: 20_000,
		Method:      domain.MethodPix,
		PayerName:   "Maria Souza",
		PayerTaxID:  "12345678900",
	})
	require.NoError(t, err)
	require.NotNil(t, deposit.GatewayTxnID)
	require.Equal(t, "CNPX-1000", *deposit.GatewayTxnID)
	require.NotNil(t, deposit.PixQRCodePayload)
	require.Equal(t, "00020126pixpayload", *deposit.PixQRCodePayload)
	require.NotNil(t, deposit.PixBeneficiary)

	require.NotNil(t, pix.lastRequest)
	require.Equal(t, "https://api.example.com/v1/webhooks/connectpay", pix.lastRequest.CallbackURL)
	require.Equal(t, "Maria Souza", pix.lastRequest.PayerName)
	require.Nil(t, crypto.lastRequest)
}

func TestCreateDepositGatewayFailureMarksFailed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)

	crypto := &fakeGateway{createErr: errors.New("connection refused")}
	svc := NewDepositService(store, crypto, &fakeGateway{}, "https://api.example.com")

	account := createTestAccount(t, queries, "gwfail@example.com")

	_, err := svc.CreateDeposit(ctx, CreateDepositRequest{
		AccountID:   account.ID,
		AmountCents: 5_000,
		Method:      domain.MethodCrypto,
	})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	// The deposit row survives as FAILED with no artifacts.
	var (
		status string
		txnID  *string
	)
	row := db.QueryRow(ctx, "SELECT status, gateway_txn_id FROM deposits WHERE account_id = $1", account.ID)
	require.NoError(t, row.Scan(&status, &txnID))
	require.Equal(t, string(domain.StatusFailed), status)
	require.Nil(t, txnID)
}

func TestCreateDepositValidation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := NewDepositService(store, &fakeGateway{}, &fakeGateway{}, "https://api.example.com")

	account := createTestAccount(t, queries, "validation@example.com")

	_, err := svc.CreateDeposit(ctx, CreateDepositRequest{AccountID: account.ID, AmountCents: 0, Method: domain.MethodCrypto})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateDeposit(ctx, CreateDepositRequest{AccountID: account.ID, AmountCents: 1_000, Method: domain.Method("CASH")})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateDeposit(ctx, CreateDepositRequest{AccountID: uuid.New(), AmountCents: 1_000, Method: domain.MethodCrypto})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.CreateDeposit(ctx, CreateDepositRequest{AccountID: account.ID, AmountCents: 1_000, Method: domain.MethodCrypto, PlanID: planRef("NOPE")})
	require.ErrorIs(t, err, domain.ErrPlanNotFound)

	_, err = svc.CreateDeposit(ctx, CreateDepositRequest{AccountID: account.ID, AmountCents: 1_000, Method: domain.MethodCrypto, PlanID: planRef("RETIRED")})
	require.ErrorIs(t, err, domain.ErrPlanNotFound)

	// PANDORA requires 100.00.
	_, err = svc.CreateDeposit(ctx, CreateDepositRequest{AccountID: account.ID, AmountCents: 9_999, Method: domain.MethodCrypto, PlanID: planRef("PANDORA")})
	require.ErrorIs(t, err, domain.ErrAmountBelowMinimum)
}

func TestGetDepositOwnerScoped(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := NewDepositService(store, &fakeGateway{}, &fakeGateway{}, "https://api.example.com")

	owner := createTestAccount(t, queries, "owner@example.com")
	other := createTestAccount(t, queries, "other@example.com")
	deposit := createTestDeposit(t, queries, owner.ID, 10_000, domain.MethodCrypto, nil, "CPTX-1100")

	found, err := svc.GetDeposit(ctx, owner.ID, deposit.ID)
	require.NoError(t, err)
	require.Equal(t, deposit.ID, found.ID)

	// Another account cannot see it, and the error does not leak existence.
	_, err = svc.GetDeposit(ctx, other.ID, deposit.ID)
	require.ErrorIs(t, err, domain.ErrDepositNotFound)

	_, err = svc.GetDeposit(ctx, owner.ID, 999_999)
	require.ErrorIs(t, err, domain.ErrDepositNotFound)
}

func TestListDepositsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)
	svc := NewDepositService(store, &fakeGateway{}, &fakeGateway{}, "https://api.example.com")

	account := createTestAccount(t, queries, "list@example.com")
	for i := 0; i < 3; i++ {
		createTestDeposit(t, queries, account.ID, 10_000, domain.MethodCrypto, nil, fmt.Sprintf("CPTX-12%02d", i))
	}

	deposits, err := svc.ListDeposits(ctx, account.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 2)

	rest, err := svc.ListDeposits(ctx, account.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}
