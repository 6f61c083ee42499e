package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hooinvest/deposit-engine/internal/domain"
	"github.com/hooinvest/deposit-engine/internal/models"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so the same query set
// works inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the data access layer for the deposit engine.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a query set bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// --- accounts ---

func (q *Queries) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (id, email, balance_cents, created_at) VALUES ($1, $2, $3, NOW()) RETURNING created_at`
	err := q.db.QueryRow(ctx, query, account.ID, account.Email, account.BalanceCents).Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account := &models.Account{}
	query := `SELECT id, email, balance_cents, created_at FROM accounts WHERE id = $1`
	err := q.db.QueryRow(ctx, query, id).Scan(&account.ID, &account.Email, &account.BalanceCents, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetAccountForUpdate acquires an exclusive row lock on the account.
func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account := &models.Account{}
	query := `SELECT id, email, balance_cents, created_at FROM accounts WHERE id = $1 FOR UPDATE`
	err := q.db.QueryRow(ctx, query, id).Scan(&account.ID, &account.Email, &account.BalanceCents, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return account, nil
}

// CreditAccountBalance increments the balance. The engine never debits.
func (q *Queries) CreditAccountBalance(ctx context.Context, id uuid.UUID, cents int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2`, cents, id)
	if err != nil {
		return 0, fmt.Errorf("credit account balance: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- plans ---

func (q *Queries) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	plan := &models.Plan{}
	query := `SELECT id, name, min_value_cents, daily_percent, duration_days, active, created_at FROM plans WHERE id = $1`
	err := q.db.QueryRow(ctx, query, id).Scan(&plan.ID, &plan.Name, &plan.MinValueCents, &plan.DailyPercent, &plan.DurationDays, &plan.Active, &plan.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

func (q *Queries) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	query := `SELECT id, name, min_value_cents, daily_percent, duration_days, active, created_at FROM plans WHERE active ORDER BY min_value_cents`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.MinValueCents, &p.DailyPercent, &p.DurationDays, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// --- deposits ---

const depositColumns = `id, account_id, method, amount_cents, plan_id, status,
	gateway_txn_id, payment_address, qrcode_url, status_url,
	pix_qr_code_payload, pix_qr_code_image_url, pix_key, pix_key_type, pix_beneficiary_name,
	transaction_hash, created_at, updated_at`

func scanDeposit(row pgx.Row) (*models.Deposit, error) {
	d := &models.Deposit{}
	err := row.Scan(
		&d.ID, &d.AccountID, &d.Method, &d.AmountCents, &d.PlanID, &d.Status,
		&d.GatewayTxnID, &d.PaymentAddress, &d.QRCodeURL, &d.StatusURL,
		&d.PixQRCodePayload, &d.PixQRCodeImageURL, &d.PixKey, &d.PixKeyType, &d.PixBeneficiary,
		&d.TransactionHash, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (q *Queries) CreateDeposit(ctx context.Context, d *models.Deposit) error {
	query := `
		INSERT INTO deposits (account_id, method, amount_cents, plan_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := q.db.QueryRow(ctx, query, d.AccountID, d.Method, d.AmountCents, d.PlanID, d.Status).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create deposit: %w", err)
	}
	return nil
}

func (q *Queries) GetDeposit(ctx context.Context, id int64) (*models.Deposit, error) {
	d, err := scanDeposit(q.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get deposit: %w", err)
	}
	return d, nil
}

// GetDepositForUpdate acquires an exclusive row lock on the deposit. Every
// status transition rechecks state through this lock.
func (q *Queries) GetDepositForUpdate(ctx context.Context, id int64) (*models.Deposit, error) {
	d, err := scanDeposit(q.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("lock deposit: %w", err)
	}
	return d, nil
}

func (q *Queries) ListDepositsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		deposits = append(deposits, *d)
	}
	return deposits, rows.Err()
}

// SetDepositCryptoArtifacts stores the CoinPayments create-transaction result.
func (q *Queries) SetDepositCryptoArtifacts(ctx context.Context, id int64, txnID, address, qrcodeURL, statusURL string) error {
	query := `
		UPDATE deposits
		SET gateway_txn_id = $1, payment_address = $2, qrcode_url = $3, status_url = $4, updated_at = NOW()
		WHERE id = $5
	`
	if _, err := q.db.Exec(ctx, query, txnID, address, qrcodeURL, statusURL, id); err != nil {
		return fmt.Errorf("set crypto artifacts: %w", err)
	}
	return nil
}

// SetDepositPixArtifacts stores the ConnectPay create-transaction result.
func (q *Queries) SetDepositPixArtifacts(ctx context.Context, id int64, txnID, qrPayload, qrImageURL, pixKey, pixKeyType, beneficiary string) error {
	query := `
		UPDATE deposits
		SET gateway_txn_id = $1, pix_qr_code_payload = $2, pix_qr_code_image_url = $3,
		    pix_key = $4, pix_key_type = $5, pix_beneficiary_name = $6, updated_at = NOW()
		WHERE id = $7
	`
	if _, err := q.db.Exec(ctx, query, txnID, qrPayload, qrImageURL, pixKey, pixKeyType, beneficiary, id); err != nil {
		return fmt.Errorf("set pix artifacts: %w", err)
	}
	return nil
}

// SetDepositGatewayTxnID records a gateway transaction id first observed via
// webhook. The unique constraint rejects a second deposit claiming it.
func (q *Queries) SetDepositGatewayTxnID(ctx context.Context, id int64, txnID string) error {
	if _, err := q.db.Exec(ctx, `UPDATE deposits SET gateway_txn_id = $1, updated_at = NOW() WHERE id = $2`, txnID, id); err != nil {
		return fmt.Errorf("set gateway txn id: %w", err)
	}
	return nil
}

func (q *Queries) UpdateDepositStatus(ctx context.Context, id int64, status domain.DepositStatus) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE deposits SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return 0, fmt.Errorf("update deposit status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ConfirmDeposit sets the terminal CONFIRMED status together with the
// settlement reference.
func (q *Queries) ConfirmDeposit(ctx context.Context, id int64, transactionHash string) (int64, error) {
	query := `UPDATE deposits SET status = $1, transaction_hash = $2, updated_at = NOW() WHERE id = $3`
	tag, err := q.db.Exec(ctx, query, domain.StatusConfirmed, transactionHash, id)
	if err != nil {
		return 0, fmt.Errorf("confirm deposit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListStaleDeposits returns non-terminal deposits with a known gateway txn id
// not updated since the cutoff, oldest first.
func (q *Queries) ListStaleDeposits(ctx context.Context, cutoff time.Time, limit int32) ([]models.Deposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE status IN ($1, $2) AND gateway_txn_id IS NOT NULL AND updated_at < $3
		ORDER BY updated_at
		LIMIT $4
	`
	rows, err := q.db.Query(ctx, query, domain.StatusPending, domain.StatusPaid, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale deposits: %w", err)
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale deposit: %w", err)
		}
		deposits = append(deposits, *d)
	}
	return deposits, rows.Err()
}

// --- investments ---

func (q *Queries) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	query := `
		INSERT INTO investments (id, account_id, plan_id, deposit_id, amount_cents, code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
	err := q.db.QueryRow(ctx, query, inv.ID, inv.AccountID, inv.PlanID, inv.DepositID, inv.AmountCents, inv.Code, inv.Status).
		Scan(&inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create investment: %w", err)
	}
	return nil
}

func (q *Queries) InvestmentExistsForDeposit(ctx context.Context, depositID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM investments WHERE deposit_id = $1)`, depositID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check investment existence: %w", err)
	}
	return exists, nil
}

func (q *Queries) InvestmentCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM investments WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check investment code: %w", err)
	}
	return exists, nil
}

func (q *Queries) GetInvestmentByDeposit(ctx context.Context, depositID int64) (*models.Investment, error) {
	inv := &models.Investment{}
	query := `SELECT id, account_id, plan_id, deposit_id, amount_cents, code, status, created_at FROM investments WHERE deposit_id = $1`
	err := q.db.QueryRow(ctx, query, depositID).
		Scan(&inv.ID, &inv.AccountID, &inv.PlanID, &inv.DepositID, &inv.AmountCents, &inv.Code, &inv.Status, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get investment by deposit: %w", err)
	}
	return inv, nil
}

// --- audit ---

type InsertAuditLogParams struct {
	EntityType string
	EntityID   string
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertAuditLog(ctx context.Context, p InsertAuditLogParams) error {
	query := `
		INSERT INTO audit_log (entity_type, entity_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	if _, err := q.db.Exec(ctx, query, p.EntityType, p.EntityID, p.Action, p.PrevState, p.NextState, p.Metadata); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
