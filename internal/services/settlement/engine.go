// Package settlement authorizes treasury transfers that need a partner signature followed by an admin signature.
package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/pkg/keylock"
	"go.uber.org/zap"
)

// Repository persists multisig transactions.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.MultiSigTransaction, error)
	Save(ctx context.Context, tx *domain.MultiSigTransaction) error
	ListByParty(ctx context.Context, partyID string) ([]*domain.MultiSigTransaction, error)
}

// Ledger moves treasury funds.
type Ledger interface {
	Debit(ctx context.Context, ownerID string, amount domain.Money) error
	Credit(ctx context.Context, ownerID string, amount domain.Money) error
}

// UserResolver maps a username or id to a platform user.
type UserResolver interface {
	Resolve(ctx context.Context, usernameOrID string) (domain.User, error)
}

// AdminDirectory tells co-signing admins apart from regular users.
type AdminDirectory interface {
	IsAdmin(actorID string) bool
}

// Broadcaster hands a completed transfer to the settlement rail.
type Broadcaster interface {
	BroadcastTransfer(ctx context.Context, tx domain.MultiSigTransaction) error
}

// Notifier receives every persisted transition.
type Notifier interface {
	Notify(ctx context.Context, event domain.TransitionEvent)
}

// Deps are the collaborators of the engine. Notifier is optional.
type Deps struct {
	Repo        Repository
	Ledger      Ledger
	Users       UserResolver
	Admins      AdminDirectory
	Broadcaster Broadcaster
	Notifier    Notifier
	Logger      *zap.Logger
}

// InitiateRequest proposes a transfer out of the treasury.
type InitiateRequest struct {
	InitiatorID    string
	CounterpartyID string
	Amount         domain.Money
	// DestinationAddress EVM address for crypto, bank reference for fiat.
	DestinationAddress string
}

// Engine runs PendingPartner -> PendingAdmin -> Completed, with rejection from either pending state.
type Engine struct {
	repo        Repository
	ledger      Ledger
	users       UserResolver
	admins      AdminDirectory
	broadcaster Broadcaster
	notifier    Notifier
	treasury    string
	locks       *keylock.Locker
	l           *zap.Logger
	now         func() time.Time
	newID       func() string
}

// New creates an Engine paying out of the treasury wallet owned by treasuryOwner.
func New(deps Deps, treasuryOwner string) (*Engine, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("settlement repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Users == nil:
		return nil, errors.New("user resolver is required")
	case deps.Admins == nil:
		return nil, errors.New("admin directory is required")
	case deps.Broadcaster == nil:
		return nil, errors.New("broadcaster is required")
	case treasuryOwner == "":
		return nil, errors.New("treasury owner is required")
	}

	l := deps.Logger
	if l == nil {
		l = zap.NewNop()
	}

	return &Engine{
		repo:        deps.Repo,
		ledger:      deps.Ledger,
		users:       deps.Users,
		admins:      deps.Admins,
		broadcaster: deps.Broadcaster,
		notifier:    deps.Notifier,
		treasury:    treasuryOwner,
		locks:       keylock.New(),
		l:           l,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}, nil
}

// Initiate records a transfer awaiting the counterparty's signature.
func (e *Engine) Initiate(ctx context.Context, req InitiateRequest) (*domain.MultiSigTransaction, error) {
	if req.InitiatorID == "" {
		return nil, domain.ErrUnauthorizedActor.New("initiator id is required")
	}
	if !req.Amount.IsPositive() || req.Amount.Currency == "" {
		return nil, domain.ErrValidation.Newf("settlement amount must be positive, got %s", req.Amount.String())
	}

	counterparty, err := e.users.Resolve(ctx, req.CounterpartyID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve counterparty")
	}
	if counterparty.ID == req.InitiatorID {
		return nil, domain.ErrValidation.New("counterparty must differ from initiator")
	}

	destination, err := validateDestination(req.Amount.Currency, req.DestinationAddress)
	if err != nil {
		return nil, err
	}

	tx := &domain.MultiSigTransaction{
		ID:                 e.newID(),
		InitiatingPartyID:  req.InitiatorID,
		CounterpartyID:     counterparty.ID,
		Amount:             req.Amount.Round(),
		DestinationAddress: destination,
		Status:             domain.SettlementPendingPartner,
		CreatedAt:          e.now(),
	}
	if err := e.repo.Save(ctx, tx); err != nil {
		return nil, errors.Wrap(err, "persist settlement")
	}

	e.l.Info("settlement initiated",
		zap.String("settlement_id", tx.ID),
		zap.String("initiator_id", tx.InitiatingPartyID),
		zap.String("counterparty_id", tx.CounterpartyID),
		zap.String("amount", tx.Amount.String()))
	e.notify(ctx, tx, req.InitiatorID, "", "")

	return tx.Clone(), nil
}

// Sign fills the next signature slot. The admin signature debits the treasury and completes the transfer.
func (e *Engine) Sign(ctx context.Context, txID, signerID string) (*domain.MultiSigTransaction, error) {
	if signerID == "" {
		return nil, domain.ErrUnauthorizedActor.New("signer id is required")
	}

	unlock := e.locks.Lock(txID)
	defer unlock()

	tx, err := e.repo.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	from := tx.Status
	to, ok := from.SignedStatus()
	if !ok || !from.CanTransition(to) {
		return nil, domain.ErrInvalidStateTransition.Newf("settlement %s is %s and cannot be signed", tx.ID, from)
	}
	now := e.now()

	switch to {
	case domain.SettlementPendingAdmin:
		if signerID != tx.CounterpartyID {
			return nil, domain.ErrUnauthorizedActor.Newf("only the counterparty can sign settlement %s first", tx.ID)
		}
		tx.PartnerSignature = &domain.Signature{SignerID: signerID, SignedAt: now}
		tx.Status = to
		if err := e.repo.Save(ctx, tx); err != nil {
			return nil, errors.Wrapf(err, "persist settlement %s", tx.ID)
		}

	case domain.SettlementCompleted:
		if err := e.checkAdminSigner(tx, signerID); err != nil {
			return nil, err
		}
		if err := e.ledger.Debit(ctx, e.treasury, tx.Amount); err != nil {
			return nil, errors.Wrapf(err, "debit treasury for settlement %s", tx.ID)
		}
		tx.AdminSignature = &domain.Signature{SignerID: signerID, SignedAt: now}
		tx.Status = to
		if err := e.repo.Save(ctx, tx); err != nil {
			e.refundTreasury(ctx, tx)
			return nil, errors.Wrapf(err, "persist settlement %s", tx.ID)
		}

	default:
		return nil, errors.Errorf("settlement %s: no signature slot leads to %s", tx.ID, to)
	}

	e.l.Info("settlement signed",
		zap.String("settlement_id", tx.ID),
		zap.String("signer_id", signerID),
		zap.String("from", string(from)),
		zap.String("to", string(tx.Status)))
	e.notify(ctx, tx, signerID, from, "")

	if tx.Status == domain.SettlementCompleted {
		if err := e.broadcaster.BroadcastTransfer(ctx, *tx.Clone()); err != nil {
			e.l.Error("failed to broadcast settlement", zap.String("settlement_id", tx.ID), zap.Error(err))
		}
	}

	return tx.Clone(), nil
}

// Reject terminally refuses a pending transfer.
func (e *Engine) Reject(ctx context.Context, txID, signerID, reason string) (*domain.MultiSigTransaction, error) {
	if signerID == "" {
		return nil, domain.ErrUnauthorizedActor.New("signer id is required")
	}

	unlock := e.locks.Lock(txID)
	defer unlock()

	tx, err := e.repo.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	from := tx.Status
	if !from.CanTransition(domain.SettlementRejected) {
		return nil, domain.ErrInvalidStateTransition.Newf("settlement %s is %s and cannot be rejected", tx.ID, from)
	}
	if signerID != tx.CounterpartyID && signerID != tx.InitiatingPartyID && !e.admins.IsAdmin(signerID) {
		return nil, domain.ErrUnauthorizedActor.Newf("%s cannot reject settlement %s", signerID, tx.ID)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrValidation.New("rejection reason is required")
	}

	tx.Rejection = &domain.Rejection{SignerID: signerID, Reason: reason, RejectedAt: e.now()}
	tx.Status = domain.SettlementRejected
	if err := e.repo.Save(ctx, tx); err != nil {
		return nil, errors.Wrapf(err, "persist settlement %s", tx.ID)
	}

	e.l.Info("settlement rejected",
		zap.String("settlement_id", tx.ID),
		zap.String("signer_id", signerID),
		zap.String("reason", reason))
	e.notify(ctx, tx, signerID, from, reason)

	return tx.Clone(), nil
}

// Get returns one transfer.
func (e *Engine) Get(ctx context.Context, txID string) (*domain.MultiSigTransaction, error) {
	return e.repo.Get(ctx, txID)
}

// List returns transfers initiated by or addressed to partyID; empty lists all.
func (e *Engine) List(ctx context.Context, partyID string) ([]*domain.MultiSigTransaction, error) {
	return e.repo.ListByParty(ctx, partyID)
}

func (e *Engine) checkAdminSigner(tx *domain.MultiSigTransaction, signerID string) error {
	if !e.admins.IsAdmin(signerID) {
		return domain.ErrUnauthorizedActor.Newf("%s is not an admin", signerID)
	}
	if tx.PartnerSignature != nil && tx.PartnerSignature.SignerID == signerID {
		return domain.ErrUnauthorizedActor.New("admin signature must come from a second party")
	}
	if signerID == tx.InitiatingPartyID {
		return domain.ErrUnauthorizedActor.New("initiator cannot co-sign its own settlement")
	}
	return nil
}

func (e *Engine) refundTreasury(ctx context.Context, tx *domain.MultiSigTransaction) {
	if err := e.ledger.Credit(context.WithoutCancel(ctx), e.treasury, tx.Amount); err != nil {
		e.l.Error("failed to return treasury funds",
			zap.String("settlement_id", tx.ID),
			zap.String("amount", tx.Amount.String()),
			zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, tx *domain.MultiSigTransaction, actorID string, from domain.SettlementStatus, note string) {
	if e.notifier == nil {
		return
	}
	event := domain.NewSettlementEvent(tx, actorID, from, e.now())
	event.Note = note
	e.notifier.Notify(ctx, event)
}

func validateDestination(currency domain.Currency, destination string) (string, error) {
	destination = strings.TrimSpace(destination)
	if currency.IsFiat() {
		if destination == "" {
			return "", domain.ErrValidation.New("bank reference is required for fiat settlements")
		}
		return destination, nil
	}
	if !common.IsHexAddress(destination) {
		return "", domain.ErrValidation.Newf("invalid destination address %q", destination)
	}
	return common.HexToAddress(destination).Hex(), nil
}
