package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowStatus lifecycle state of an escrow transaction.
type EscrowStatus string

const (
	EscrowAwaitingFunding EscrowStatus = "awaiting_funding"
	EscrowInEscrow        EscrowStatus = "in_escrow"
	EscrowAwaitingRelease EscrowStatus = "awaiting_release"
	EscrowCompleted       EscrowStatus = "completed"
	EscrowDisputed        EscrowStatus = "disputed"
	EscrowCanceled        EscrowStatus = "canceled"
	// EscrowRefunded dispute resolved in favour of the buyer.
	EscrowRefunded EscrowStatus = "refunded"
)

// EscrowTransitions is the complete set of legal escrow transitions.
// Anything absent from the table is rejected with ErrInvalidStateTransition.
var EscrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowAwaitingFunding: {EscrowInEscrow, EscrowCanceled},
	EscrowInEscrow:        {EscrowAwaitingRelease, EscrowDisputed},
	EscrowAwaitingRelease: {EscrowCompleted, EscrowDisputed},
	EscrowDisputed:        {EscrowCompleted, EscrowRefunded},
}

// CanTransition reports whether the table allows from -> to.
func (s EscrowStatus) CanTransition(to EscrowStatus) bool {
	for _, next := range EscrowTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status.
func (s EscrowStatus) IsTerminal() bool {
	return len(EscrowTransitions[s]) == 0
}

// IsValid reports whether s is a known status.
func (s EscrowStatus) IsValid() bool {
	switch s {
	case EscrowAwaitingFunding, EscrowInEscrow, EscrowAwaitingRelease,
		EscrowCompleted, EscrowDisputed, EscrowCanceled, EscrowRefunded:
		return true
	}
	return false
}

// FundsFrozen reports whether the escrow holds buyer funds that neither party can use.
func (s EscrowStatus) FundsFrozen() bool {
	switch s {
	case EscrowInEscrow, EscrowAwaitingRelease, EscrowDisputed:
		return true
	}
	return false
}

// Resolution outcome of a manually reviewed dispute.
type Resolution string

const (
	// ResolutionRelease pays the seller net of fee.
	ResolutionRelease Resolution = "release"
	// ResolutionRefund returns the full amount to the buyer.
	ResolutionRefund Resolution = "refund"
)

// Dispute raised against a funded escrow.
type Dispute struct {
	RaisedBy   string     `json:"raised_by"`
	Reason     string     `json:"reason"`
	Evidence   []FileRef  `json:"evidence,omitempty"`
	RaisedAt   time.Time  `json:"raised_at"`
	Resolution Resolution `json:"resolution,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// EscrowTransaction funds held between a buyer and a seller.
type EscrowTransaction struct {
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Amount      Money           `json:"amount"`
	FeePercent  decimal.Decimal `json:"fee_percent"`
	Description string          `json:"description,omitempty"`
	Status      EscrowStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	FundedAt    *time.Time      `json:"funded_at,omitempty"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	ReleasedAt  *time.Time      `json:"released_at,omitempty"`
	CanceledAt  *time.Time      `json:"canceled_at,omitempty"`
	Dispute     *Dispute        `json:"dispute,omitempty"`
}

// Fee platform fee, always derived from amount and fee percent.
func (e *EscrowTransaction) Fee() Money {
	return e.Amount.Percent(e.FeePercent)
}

// SellerProceeds amount credited to the seller on release.
func (e *EscrowTransaction) SellerProceeds() Money {
	return Money{Amount: e.Amount.Amount.Sub(e.Fee().Amount), Currency: e.Amount.Currency}
}

// IsParty reports whether actorID is the buyer or the seller.
func (e *EscrowTransaction) IsParty(actorID string) bool {
	return actorID != "" && (actorID == e.BuyerID || actorID == e.SellerID)
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (e *EscrowTransaction) Clone() *EscrowTransaction {
	if e == nil {
		return nil
	}
	c := *e
	c.FundedAt = cloneTime(e.FundedAt)
	c.DeliveredAt = cloneTime(e.DeliveredAt)
	c.ReleasedAt = cloneTime(e.ReleasedAt)
	c.CanceledAt = cloneTime(e.CanceledAt)
	if e.Dispute != nil {
		d := *e.Dispute
		d.Evidence = append([]FileRef(nil), e.Dispute.Evidence...)
		d.ResolvedAt = cloneTime(e.Dispute.ResolvedAt)
		c.Dispute = &d
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
