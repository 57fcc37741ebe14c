package domain

import "time"

// SettlementStatus lifecycle state of a co-signed treasury transfer.
type SettlementStatus string

const (
	SettlementPendingPartner SettlementStatus = "pending_partner"
	SettlementPendingAdmin   SettlementStatus = "pending_admin"
	SettlementCompleted      SettlementStatus = "completed"
	SettlementRejected       SettlementStatus = "rejected"
)

// SettlementTransitions is the complete set of legal multisig transitions.
var SettlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementPendingPartner: {SettlementPendingAdmin, SettlementRejected},
	SettlementPendingAdmin:   {SettlementCompleted, SettlementRejected},
}

// CanTransition reports whether the table allows from -> to.
func (s SettlementStatus) CanTransition(to SettlementStatus) bool {
	for _, next := range SettlementTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SignedStatus returns the state a signature moves s into, the one successor that is not a rejection.
func (s SettlementStatus) SignedStatus() (SettlementStatus, bool) {
	for _, next := range SettlementTransitions[s] {
		if next != SettlementRejected {
			return next, true
		}
	}
	return "", false
}

// IsTerminal reports whether the transfer can no longer change.
func (s SettlementStatus) IsTerminal() bool {
	return len(SettlementTransitions[s]) == 0
}

// Signature approval recorded in one of the two slots.
type Signature struct {
	SignerID string    `json:"signer_id"`
	SignedAt time.Time `json:"signed_at"`
}

// Rejection terminal refusal of a transfer.
type Rejection struct {
	SignerID   string    `json:"signer_id"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

// MultiSigTransaction treasury transfer awaiting partner and admin approval.
type MultiSigTransaction struct {
	ID                 string           `json:"id"`
	InitiatingPartyID  string           `json:"initiating_party_id"`
	CounterpartyID     string           `json:"counterparty_id"`
	Amount             Money            `json:"amount"`
	DestinationAddress string           `json:"destination_address"`
	Status             SettlementStatus `json:"status"`
	CreatedAt          time.Time        `json:"created_at"`
	PartnerSignature   *Signature       `json:"partner_signature,omitempty"`
	AdminSignature     *Signature       `json:"admin_signature,omitempty"`
	Rejection          *Rejection       `json:"rejection,omitempty"`
}

// FullySigned reports whether both signature slots are populated.
func (m *MultiSigTransaction) FullySigned() bool {
	return m.PartnerSignature != nil && m.AdminSignature != nil
}

// Clone returns a deep copy.
func (m *MultiSigTransaction) Clone() *MultiSigTransaction {
	if m == nil {
		return nil
	}
	c := *m
	if m.PartnerSignature != nil {
		s := *m.PartnerSignature
		c.PartnerSignature = &s
	}
	if m.AdminSignature != nil {
		s := *m.AdminSignature
		c.AdminSignature = &s
	}
	if m.Rejection != nil {
		r := *m.Rejection
		c.Rejection = &r
	}
	return &c
}
