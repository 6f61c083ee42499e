package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/repository"
)

func TestSweepConfirmsStaleDeposits(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)

	crypto := &fakeGateway{statuses: map[string]string{"CPTX-2000": "100"}}
	pix := &fakeGateway{statuses: map[string]string{"CNPX-2000": "AUTHORIZED"}}
	svc := NewPollingService(store, crypto, pix, 10*time.Minute, 50)

	account := createTestAccount(t, queries, "sweep@example.com")
	cryptoDep := createTestDeposit(t, queries, account.ID, 15_000, domain.MethodCrypto, planRef("PANDORA"), "CPTX-2000")
	pixDep := createTestDeposit(t, queries, account.ID, 20_000, domain.MethodPix, nil, "CNPX-2000")

	_, err := db.Exec(ctx, "UPDATE deposits SET updated_at = NOW() - INTERVAL '1 hour' WHERE id = ANY($1)", []int64{cryptoDep.ID, pixDep.ID})
	require.NoError(t, err)

	stats, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Scanned)
	require.Equal(t, 2, stats.Applied)
	require.Equal(t, 0, stats.Errors)

	updated, err := queries.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(35_000), updated.BalanceCents)

	for _, id := range []int64{cryptoDep.ID, pixDep.ID} {
		d, err := queries.GetDeposit(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusConfirmed, d.Status)
	}

	// Investment only for the plan-bearing deposit.
	var investments int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM investments").Scan(&investments))
	require.Equal(t, 1, investments)
}

func TestSweepSkipsFreshAndTerminalDeposits(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)

	crypto := &fakeGateway{statuses: map[string]string{"CPTX-2100": "100", "CPTX-2101": "100"}}
	svc := NewPollingService(store, crypto, &fakeGateway{}, 10*time.Minute, 50)

	account := createTestAccount(t, queries, "fresh@example.com")

	// Fresh deposit: updated_at is now, so it is not stale yet.
	createTestDeposit(t, queries, account.ID, 10_000, domain.MethodCrypto, nil, "CPTX-2100")

	// Terminal deposit: excluded by status even though it is old.
	failed := createTestDeposit(t, queries, account.ID, 10_000, domain.MethodCrypto, nil, "CPTX-2101")
	_, err := queries.UpdateDepositStatus(ctx, failed.ID, domain.StatusFailed)
	require.NoError(t, err)
	_, err = db.Exec(ctx, "UPDATE deposits SET updated_at = NOW() - INTERVAL '1 hour' WHERE id = $1", failed.ID)
	require.NoError(t, err)

	stats, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Scanned)

	updated, err := queries.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), updated.BalanceCents)
}

func TestSweepIsolatesPerItemFailures(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)

	// The gateway only knows the second transaction; the first errors.
	crypto := &fakeGateway{statuses: map[string]string{"CPTX-2201": "100"}}
	svc := NewPollingService(store, crypto, &fakeGateway{}, 10*time.Minute, 50)

	account := createTestAccount(t, queries, "isolate@example.com")
	broken := createTestDeposit(t, queries, account.ID, 10_000, domain.MethodCrypto, nil, "CPTX-2200")
	healthy := createTestDeposit(t, queries, account.ID, 15_000, domain.MethodCrypto, nil, "CPTX-2201")

	_, err := db.Exec(ctx, "UPDATE deposits SET updated_at = NOW() - INTERVAL '1 hour' WHERE id = ANY($1)", []int64{broken.ID, healthy.ID})
	require.NoError(t, err)

	stats, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Scanned)
	require.Equal(t, 1, stats.Applied)
	require.Equal(t, 1, stats.Errors)

	confirmed, err := queries.GetDeposit(ctx, healthy.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, confirmed.Status)

	still, err := queries.GetDeposit(ctx, broken.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, still.Status)
}

func TestSweepLeavesPendingWhenGatewayStillPending(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	store := repository.NewStore(db)
	queries := repository.New(db)

	pix := &fakeGateway{statuses: map[string]string{"CNPX-2300": "PENDING"}}
	svc := NewPollingService(store, &fakeGateway{statusErr: errors.New("unused")}, pix, 10*time.Minute, 50)

	account := createTestAccount(t, queries, "stillpending@example.com")
	deposit := createTestDeposit(t, queries, account.ID, 10_000, domain.MethodPix, nil, "CNPX-2300")
	_, err := db.Exec(ctx, "UPDATE deposits SET updated_at = NOW() - INTERVAL '1 hour' WHERE id = $1", deposit.ID)
	require.NoError(t, err)

	stats, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Scanned)
	require.Equal(t, 0, stats.Applied)
	require.Equal(t, 1, stats.StillPending)

	current, err := queries.GetDeposit(ctx, deposit.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, current.Status)
}
