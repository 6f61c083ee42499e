package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/models"
	"github.com/hooinvest/deposit-engine/internal/observability"
	"github.com/hooinvest/deposit-engine/internal/repository"
)

// ReconciliationService is the single write path for deposit state. Webhooks
// and the polling sweep both converge here, so whichever event arrives first
// wins the transition and the other becomes a no-op under the row lock.
type ReconciliationService struct {
	store QueryStore
	audit *AuditService
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{
		store: store,
		audit: NewAuditService(store),
	}
}

// Transition is one verified, already-mapped gateway event.
type Transition struct {
	DepositID int64
	Target    domain.DepositStatus

	// GatewayTxnID is recorded on the deposit if it has none yet. The
	// uniqueness constraint makes it the dedup key across deposits.
	GatewayTxnID string

	// SettlementRef becomes transaction_hash when the target is CONFIRMED.
	SettlementRef string

	// Source tags audit events and metrics ("webhook:coinpayments", "poll:pix", ...).
	Source string
}

// ApplyResult reports what the engine did with the event.
type ApplyResult struct {
	From    domain.DepositStatus
	To      domain.DepositStatus
	Applied bool

	// AlreadyFinal means the deposit was in a terminal state before the
	// event; the caller should acknowledge without side effects so the
	// gateway stops retrying.
	AlreadyFinal bool
}

// Apply advances the deposit toward the target state inside one transaction:
// lock the deposit row, recheck its status, and only then mutate. A target of
// CONFIRMED additionally locks the account, credits the balance, and creates
// the investment for plan-bearing deposits — all or nothing.
func (s *ReconciliationService) Apply(ctx context.Context, t Transition) (*ApplyResult, error) {
	if !t.Target.Valid() {
		return nil, fmt.Errorf("%w: unknown target status %q", domain.ErrValidation, t.Target)
	}

	result := &ApplyResult{}
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		deposit, err := qtx.GetDepositForUpdate(ctx, t.DepositID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrDepositNotFound
			}
			return err
		}
		result.From = deposit.Status
		result.To = deposit.Status

		if deposit.Status.IsTerminal() {
			result.AlreadyFinal = true
			return nil
		}

		if t.GatewayTxnID != "" && deposit.GatewayTxnID == nil {
			if err := qtx.SetDepositGatewayTxnID(ctx, deposit.ID, t.GatewayTxnID); err != nil {
				return err
			}
		}

		if t.Target == deposit.Status || !domain.CanTransition(deposit.Status, t.Target) {
			return nil
		}

		switch t.Target {
		case domain.StatusConfirmed:
			if err := s.confirm(ctx, qtx, deposit, t.SettlementRef); err != nil {
				return err
			}
		default:
			rows, err := qtx.UpdateDepositStatus(ctx, deposit.ID, t.Target)
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "update deposit status"); err != nil {
				return err
			}
		}

		result.To = t.Target
		result.Applied = true

		metadata, _ := json.Marshal(map[string]string{"source": t.Source})
		return s.audit.Write(ctx, qtx, "deposit", depositEntityID(deposit.ID),
			"status_transition", string(deposit.Status), string(t.Target), metadata)
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		observability.IncrementDepositTransition(string(result.From), string(result.To), t.Source)
		zap.L().Info("deposit transition applied",
			zap.Int64("deposit_id", t.DepositID),
			zap.String("from", string(result.From)),
			zap.String("to", string(result.To)),
			zap.String("source", t.Source),
		)
	}
	return result, nil
}

// confirm performs the at-most-once crediting unit. Caller holds the deposit
// row lock and has verified the current status is non-terminal.
func (s *ReconciliationService) confirm(ctx context.Context, qtx *repository.Queries, deposit *models.Deposit, settlementRef string) error {
	account, err := qtx.GetAccountForUpdate(ctx, deposit.AccountID)
	if err != nil {
		return err
	}

	rows, err := qtx.CreditAccountBalance(ctx, account.ID, deposit.AmountCents)
	if err != nil {
		return err
	}
	if err := requireExactlyOne(rows, "credit account balance"); err != nil {
		return err
	}

	if settlementRef == "" {
		if deposit.GatewayTxnID != nil {
			settlementRef = *deposit.GatewayTxnID
		}
	}
	rows, err = qtx.ConfirmDeposit(ctx, deposit.ID, settlementRef)
	if err != nil {
		return err
	}
	if err := requireExactlyOne(rows, "confirm deposit"); err != nil {
		return err
	}

	if deposit.PlanID == nil {
		return nil
	}

	exists, err := qtx.InvestmentExistsForDeposit(ctx, deposit.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	code, err := generateActivationCode(ctx, qtx)
	if err != nil {
		return err
	}
	inv := &models.Investment{
		ID:          uuid.New(),
		AccountID:   deposit.AccountID,
		PlanID:      *deposit.PlanID,
		DepositID:   deposit.ID,
		AmountCents: deposit.AmountCents,
		Code:        code,
		Status:      domain.InvestmentStatusActive,
	}
	if err := qtx.CreateInvestment(ctx, inv); err != nil {
		return err
	}

	metadata, _ := json.Marshal(map[string]any{
		"deposit_id":   deposit.ID,
		"plan_id":      *deposit.PlanID,
		"amount_cents": deposit.AmountCents,
	})
	if err := s.audit.Write(ctx, qtx, "investment", inv.ID.String(),
		"activated", "", domain.InvestmentStatusActive, metadata); err != nil {
		return err
	}
	observability.IncrementInvestmentActivation(*deposit.PlanID)
	return nil
}

const activationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateActivationCode produces a unique INV-XXXXXXXX code, rechecking
// uniqueness before commit.
func generateActivationCode(ctx context.Context, qtx *repository.Queries) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate activation code: %w", err)
		}
		for i, b := range buf {
			buf[i] = activationCodeAlphabet[int(b)%len(activationCodeAlphabet)]
		}
		code := "INV-" + string(buf)

		exists, err := qtx.InvestmentCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique activation code")
}

func depositEntityID(id int64) string {
	return fmt.Sprintf("%d", id)
}
