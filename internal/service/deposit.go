package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/gateway"
	"github.com/hooinvest/deposit-engine/internal/models"
	"github.com/hooinvest/deposit-engine/internal/repository"
)

// DepositService opens deposit intents against the external gateways.
type DepositService struct {
	store           QueryStore
	crypto          gateway.Gateway
	pix             gateway.Gateway
	callbackBaseURL string
	audit           *AuditService
}

func NewDepositService(store QueryStore, crypto, pix gateway.Gateway, callbackBaseURL string) *DepositService {
	return &DepositService{
		store:           store,
		crypto:          crypto,
		pix:             pix,
		callbackBaseURL: callbackBaseURL,
		audit:           NewAuditService(store),
	}
}

// CreateDepositRequest holds the parameters for opening a deposit intent.
type CreateDepositRequest struct {
	AccountID   uuid.UUID
	AmountCents int64
	Method      domain.Method
	PlanID      *string
	PayerName   string
	PayerTaxID  string
	ClientIP    string
}

// CreateDeposit persists a PENDING deposit, registers it with the matching
// gateway using the deposit id as the correlation token, and stores the
// returned artifacts. A gateway failure marks the deposit FAILED and
// surfaces as ErrGatewayUnavailable; no partial artifacts survive.
func (s *DepositService) CreateDeposit(ctx context.Context, req CreateDepositRequest) (*models.Deposit, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	}
	if req.Method != domain.MethodCrypto && req.Method != domain.MethodPix {
		return nil, fmt.Errorf("%w: unsupported method %q", domain.ErrValidation, req.Method)
	}

	queries := s.store.Queries()
	account, err := queries.GetAccount(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}

	if req.PlanID != nil {
		plan, err := queries.GetPlan(ctx, *req.PlanID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrPlanNotFound
			}
			return nil, err
		}
		if !plan.Active {
			return nil, domain.ErrPlanNotFound
		}
		if req.AmountCents < plan.MinValueCents {
			return nil, fmt.Errorf("%w: plan %s requires at least %s", domain.ErrAmountBelowMinimum, plan.ID, domain.FormatAmount(plan.MinValueCents))
		}
	}

	deposit := &models.Deposit{
		AccountID:   req.AccountID,
		Method:      req.Method,
		AmountCents: req.AmountCents,
		PlanID:      req.PlanID,
		Status:      domain.StatusPending,
	}
	if err := queries.CreateDeposit(ctx, deposit); err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]any{
		"method":       deposit.Method,
		"amount_cents": deposit.AmountCents,
		"plan_id":      deposit.PlanID,
	})
	if err := s.audit.Write(ctx, queries, "deposit", depositEntityID(deposit.ID),
		"created", "", string(domain.StatusPending), metadata); err != nil {
		return nil, err
	}

	intent := gateway.IntentRequest{
		DepositID:   deposit.ID,
		AmountCents: deposit.AmountCents,
		PayerEmail:  account.Email,
		PayerName:   req.PayerName,
		PayerTaxID:  req.PayerTaxID,
		ClientIP:    req.ClientIP,
	}

	var artifacts *gateway.Artifacts
	switch req.Method {
	case domain.MethodCrypto:
		intent.CallbackURL = s.callbackBaseURL + "/v1/webhooks/coinpayments"
		artifacts, err = s.crypto.CreateIntent(ctx, intent)
	case domain.MethodPix:
		intent.CallbackURL = s.callbackBaseURL + "/v1/webhooks/connectpay"
		artifacts, err = s.pix.CreateIntent(ctx, intent)
	}
	if err != nil {
		s.markFailed(ctx, deposit.ID, err)
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	switch req.Method {
	case domain.MethodCrypto:
		err = queries.SetDepositCryptoArtifacts(ctx, deposit.ID,
			artifacts.TxnID, artifacts.PaymentAddress, artifacts.QRCodeURL, artifacts.StatusURL)
	case domain.MethodPix:
		err = queries.SetDepositPixArtifacts(ctx, deposit.ID,
			artifacts.TxnID, artifacts.PixQRCodePayload, artifacts.PixQRCodeImageURL,
			artifacts.PixKey, artifacts.PixKeyType, artifacts.PixBeneficiary)
	}
	if err != nil {
		return nil, err
	}

	gwMeta, _ := json.Marshal(map[string]string{"gateway_txn_id": artifacts.TxnID})
	if err := s.audit.Write(ctx, queries, "deposit", depositEntityID(deposit.ID),
		"gateway_registered", "", "", gwMeta); err != nil {
		return nil, err
	}

	return queries.GetDeposit(ctx, deposit.ID)
}

// GetDeposit returns a deposit owned by the given account.
func (s *DepositService) GetDeposit(ctx context.Context, accountID uuid.UUID, depositID int64) (*models.Deposit, error) {
	deposit, err := s.store.Queries().GetDeposit(ctx, depositID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, err
	}
	if deposit.AccountID != accountID {
		return nil, domain.ErrDepositNotFound
	}
	return deposit, nil
}

// ListDeposits returns the account's deposits, newest first.
func (s *DepositService) ListDeposits(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.Deposit, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Queries().ListDepositsByAccount(ctx, accountID, limit, offset)
}

func (s *DepositService) markFailed(ctx context.Context, depositID int64, cause error) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		deposit, err := qtx.GetDepositForUpdate(ctx, depositID)
		if err != nil {
			return err
		}
		if deposit.Status.IsTerminal() {
			return nil
		}
		rows, err := qtx.UpdateDepositStatus(ctx, depositID, domain.StatusFailed)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "mark deposit failed"); err != nil {
			return err
		}
		metadata, _ := json.Marshal(map[string]string{"reason": cause.Error()})
		return s.audit.Write(ctx, qtx, "deposit", depositEntityID(depositID),
			"gateway_failed", string(deposit.Status), string(domain.StatusFailed), metadata)
	})
	if err != nil {
		zap.L().Error("mark deposit failed errored",
			zap.Int64("deposit_id", depositID),
			zap.Error(err),
		)
	}
}
