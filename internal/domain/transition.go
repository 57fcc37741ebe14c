package domain

import "time"

// Machine names the state machine that emitted a transition.
type Machine string

const (
	MachineEscrow     Machine = "escrow"
	MachineSettlement Machine = "settlement"
)

// TransitionEvent notification emitted after a state change was persisted.
type TransitionEvent struct {
	Timestamp time.Time `json:"ts"`
	Machine   Machine   `json:"machine"`
	EntityID  string    `json:"entity_id"`
	ActorID   string    `json:"actor_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount,omitempty"`
	Currency  Currency  `json:"currency,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// NewEscrowEvent creates a TransitionEvent for an escrow status change.
func NewEscrowEvent(tx *EscrowTransaction, actorID string, from EscrowStatus, at time.Time) TransitionEvent {
	return TransitionEvent{
		Timestamp: at,
		Machine:   MachineEscrow,
		EntityID:  tx.ID,
		ActorID:   actorID,
		From:      string(from),
		To:        string(tx.Status),
		Amount:    tx.Amount.Amount.String(),
		Currency:  tx.Amount.Currency,
	}
}

// NewSettlementEvent creates a TransitionEvent for a multisig status change.
func NewSettlementEvent(tx *MultiSigTransaction, actorID string, from SettlementStatus, at time.Time) TransitionEvent {
	return TransitionEvent{
		Timestamp: at,
		Machine:   MachineSettlement,
		EntityID:  tx.ID,
		ActorID:   actorID,
		From:      string(from),
		To:        string(tx.Status),
		Amount:    tx.Amount.Amount.String(),
		Currency:  tx.Amount.Currency,
	}
}

// TransitionEventRecord bundles an event with its WAL index.
type TransitionEventRecord struct {
	Index uint64
	Event TransitionEvent
}
