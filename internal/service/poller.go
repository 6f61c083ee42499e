package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/gateway"
	"github.com/hooinvest/deposit-engine/internal/models"
)

// PollingService is the liveness fallback: it re-drives the reconciliation
// engine from pulled gateway status for deposits whose webhook never arrived.
// It introduces no second crediting path — everything funnels through Apply.
type PollingService struct {
	store       QueryStore
	crypto      gateway.Gateway
	pix         gateway.Gateway
	reconciler  *ReconciliationService
	staleAfter  time.Duration
	batchSize   int32
	itemTimeout time.Duration
}

func NewPollingService(store QueryStore, crypto, pix gateway.Gateway, staleAfter time.Duration, batchSize int32) *PollingService {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &PollingService{
		store:       store,
		crypto:      crypto,
		pix:         pix,
		reconciler:  NewReconciliationService(store),
		staleAfter:  staleAfter,
		batchSize:   batchSize,
		itemTimeout: 15 * time.Second,
	}
}

// SweepStats summarizes one sweep for logging and metrics.
type SweepStats struct {
	Scanned      int
	Applied      int
	StillPending int
	Errors       int
}

// Sweep queries the gateway for every stale non-terminal deposit and feeds
// the mapped result through the reconciliation engine. One item's failure
// never aborts the rest of the sweep.
func (s *PollingService) Sweep(ctx context.Context) (SweepStats, error) {
	stats := SweepStats{}
	cutoff := time.Now().Add(-s.staleAfter)

	deposits, err := s.store.Queries().ListStaleDeposits(ctx, cutoff, s.batchSize)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(deposits)

	for i := range deposits {
		deposit := &deposits[i]
		if err := s.sweepOne(ctx, deposit, &stats); err != nil {
			stats.Errors++
			zap.L().Error("poll sweep item failed",
				zap.Int64("deposit_id", deposit.ID),
				zap.Error(err),
			)
		}
	}
	return stats, nil
}

func (s *PollingService) sweepOne(ctx context.Context, deposit *models.Deposit, stats *SweepStats) error {
	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	var (
		gw     gateway.Gateway
		source string
	)
	switch deposit.Method {
	case domain.MethodCrypto:
		gw, source = s.crypto, "poll:coinpayments"
	case domain.MethodPix:
		gw, source = s.pix, "poll:connectpay"
	default:
		zap.L().Warn("stale deposit with unknown method",
			zap.Int64("deposit_id", deposit.ID),
			zap.String("method", string(deposit.Method)),
		)
		return nil
	}

	rawStatus, err := gw.QueryStatus(itemCtx, *deposit.GatewayTxnID)
	if err != nil {
		return err
	}

	var (
		target domain.DepositStatus
		ok     bool
	)
	switch deposit.Method {
	case domain.MethodCrypto:
		target, ok = gateway.ParseCoinPaymentsStatus(rawStatus)
	case domain.MethodPix:
		target, ok = gateway.MapConnectPayStatus(rawStatus)
	}
	if !ok {
		zap.L().Warn("unmapped gateway status during sweep",
			zap.Int64("deposit_id", deposit.ID),
			zap.String("raw_status", rawStatus),
		)
		return nil
	}

	result, err := s.reconciler.Apply(itemCtx, Transition{
		DepositID:     deposit.ID,
		Target:        target,
		SettlementRef: *deposit.GatewayTxnID,
		Source:        source,
	})
	if err != nil {
		return err
	}
	if result.Applied {
		stats.Applied++
	} else if !result.AlreadyFinal {
		stats.StillPending++
	}
	return nil
}
