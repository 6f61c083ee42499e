package domain

// DepositStatus is the canonical deposit lifecycle state. Gateway-specific
// vocabularies are translated into this enum at the adapter boundary.
type DepositStatus string

const (
	StatusPending   DepositStatus = "PENDING"
	StatusPaid      DepositStatus = "PAID"
	StatusConfirmed DepositStatus = "CONFIRMED"
	StatusFailed    DepositStatus = "FAILED"
	StatusExpired   DepositStatus = "EXPIRED"
)

// Method identifies the payment rail a deposit was opened on.
type Method string

const (
	MethodCrypto Method = "USDT_BEP20"
	MethodPix    Method = "PIX"
)

// Investment statuses. Only ACTIVE is ever written by this service; the rest
// belong to the yield scheduler.
const (
	InvestmentStatusActive    = "ACTIVE"
	InvestmentStatusExpired   = "EXPIRED"
	InvestmentStatusCancelled = "CANCELLED"
	InvestmentStatusCompleted = "COMPLETED"
)

// Plan catalog ids seeded by migrations.
const (
	PlanFree     = "FREE"
	PlanPandora  = "PANDORA"
	PlanTitan    = "TITAN"
	PlanCallisto = "CALLISTO"
)

var depositTransitions = map[DepositStatus]map[DepositStatus]struct{}{
	StatusPending: {
		StatusPaid:      {},
		StatusConfirmed: {},
		StatusFailed:    {},
		StatusExpired:   {},
	},
	StatusPaid: {
		StatusConfirmed: {},
		StatusFailed:    {},
		StatusExpired:   {},
	},
	StatusConfirmed: {},
	StatusFailed:    {},
	StatusExpired:   {},
}

// IsTerminal reports whether no further transition may leave the status.
func (s DepositStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether current -> next is a legal forward move.
// Backward moves are never legal, regardless of what a reordered gateway
// event claims.
func CanTransition(current, next DepositStatus) bool {
	targets, ok := depositTransitions[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

func (s DepositStatus) Valid() bool {
	_, ok := depositTransitions[s]
	return ok
}
