// Package escrow runs the buyer/seller escrow lifecycle, including disputes and their resolution.
package escrow

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/pkg/keylock"
	"go.uber.org/zap"
)

// Repository persists escrow transactions.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.EscrowTransaction, error)
	Save(ctx context.Context, tx *domain.EscrowTransaction) error
	ListByParty(ctx context.Context, partyID string) ([]*domain.EscrowTransaction, error)
}

// Ledger moves funds between wallets.
type Ledger interface {
	Debit(ctx context.Context, ownerID string, amount domain.Money) error
	Credit(ctx context.Context, ownerID string, amount domain.Money) error
}

// UserResolver maps a username or id to a platform user.
type UserResolver interface {
	Resolve(ctx context.Context, usernameOrID string) (domain.User, error)
}

// EvidenceStore keeps dispute attachments.
type EvidenceStore interface {
	Store(ctx context.Context, files []domain.EvidenceFile) ([]domain.FileRef, error)
	Remove(ctx context.Context, refs []domain.FileRef) error
}

// Notifier receives every persisted transition.
type Notifier interface {
	Notify(ctx context.Context, event domain.TransitionEvent)
}

// AdminDirectory tells support staff apart from regular users.
type AdminDirectory interface {
	IsAdmin(actorID string) bool
}

// Deps are the collaborators of the engine. Notifier is optional.
type Deps struct {
	Repo     Repository
	Ledger   Ledger
	Users    UserResolver
	Evidence EvidenceStore
	Admins   AdminDirectory
	Notifier Notifier
	Logger   *zap.Logger
}

// Options tune fees.
type Options struct {
	// DefaultFeePercent applies when a request leaves the fee unset.
	DefaultFeePercent decimal.Decimal
	// FeeAccount receives the platform fee on release; empty keeps the fee unallocated.
	FeeAccount string
}

// CreateRequest opens a new escrow on behalf of the buyer.
type CreateRequest struct {
	BuyerID string
	// Seller username or id.
	Seller      string
	Amount      domain.Money
	FeePercent  decimal.NullDecimal
	Description string
}

// Engine enforces the escrow transition table and the actor rules of each operation.
// Operations on one escrow are serialized; the guard check, the wallet movement and the
// status update happen under the same lock.
type Engine struct {
	repo     Repository
	ledger   Ledger
	users    UserResolver
	evidence EvidenceStore
	admins   AdminDirectory
	notifier Notifier
	opts     Options
	locks    *keylock.Locker
	l        *zap.Logger
	now      func() time.Time
	newID    func() string
}

// New creates an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("escrow repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Users == nil:
		return nil, errors.New("user resolver is required")
	case deps.Evidence == nil:
		return nil, errors.New("evidence store is required")
	case deps.Admins == nil:
		return nil, errors.New("admin directory is required")
	}
	if err := validateFeePercent(opts.DefaultFeePercent); err != nil {
		return nil, errors.Wrap(err, "default fee percent")
	}

	l := deps.Logger
	if l == nil {
		l = zap.NewNop()
	}

	return &Engine{
		repo:     deps.Repo,
		ledger:   deps.Ledger,
		users:    deps.Users,
		evidence: deps.Evidence,
		admins:   deps.Admins,
		notifier: deps.Notifier,
		opts:     opts,
		locks:    keylock.New(),
		l:        l,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}, nil
}

// Create opens an escrow in AwaitingFunding.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*domain.EscrowTransaction, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrValidation.Newf("escrow amount must be positive, got %s", req.Amount.Amount)
	}
	if req.Amount.Currency == "" {
		return nil, domain.ErrValidation.New("escrow currency is required")
	}

	feePercent := e.opts.DefaultFeePercent
	if req.FeePercent.Valid {
		feePercent = req.FeePercent.Decimal
	}
	if err := validateFeePercent(feePercent); err != nil {
		return nil, err
	}

	buyer, err := e.users.Resolve(ctx, req.BuyerID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve buyer")
	}
	seller, err := e.users.Resolve(ctx, req.Seller)
	if err != nil {
		return nil, errors.Wrap(err, "resolve seller")
	}
	if buyer.ID == seller.ID {
		return nil, domain.ErrValidation.New("buyer and seller must differ")
	}

	tx := &domain.EscrowTransaction{
		ID:          e.newID(),
		BuyerID:     buyer.ID,
		SellerID:    seller.ID,
		Amount:      req.Amount.Round(),
		FeePercent:  feePercent,
		Description: strings.TrimSpace(req.Description),
		Status:      domain.EscrowAwaitingFunding,
		CreatedAt:   e.now(),
	}

	if err := e.repo.Save(ctx, tx); err != nil {
		return nil, errors.Wrap(err, "persist escrow")
	}
	e.l.Info("escrow created",
		zap.String("escrow_id", tx.ID),
		zap.String("buyer_id", tx.BuyerID),
		zap.String("seller_id", tx.SellerID),
		zap.String("amount", tx.Amount.String()))
	e.notify(ctx, tx, buyer.ID, "", "")

	return tx.Clone(), nil
}

// step is one escrow operation: the states it may start from and the state it ends in.
type step struct {
	name string
	from []domain.EscrowStatus
	to   domain.EscrowStatus
}

var (
	fundStep           = step{name: "fund", from: []domain.EscrowStatus{domain.EscrowAwaitingFunding}, to: domain.EscrowInEscrow}
	deliverStep        = step{name: "mark delivered", from: []domain.EscrowStatus{domain.EscrowInEscrow}, to: domain.EscrowAwaitingRelease}
	releaseStep        = step{name: "release", from: []domain.EscrowStatus{domain.EscrowAwaitingRelease}, to: domain.EscrowCompleted}
	disputeStep        = step{name: "dispute", from: []domain.EscrowStatus{domain.EscrowInEscrow, domain.EscrowAwaitingRelease}, to: domain.EscrowDisputed}
	cancelStep         = step{name: "cancel", from: []domain.EscrowStatus{domain.EscrowAwaitingFunding}, to: domain.EscrowCanceled}
	resolveReleaseStep = step{name: "resolve", from: []domain.EscrowStatus{domain.EscrowDisputed}, to: domain.EscrowCompleted}
	resolveRefundStep  = step{name: "resolve", from: []domain.EscrowStatus{domain.EscrowDisputed}, to: domain.EscrowRefunded}
)

// allows reports whether the step may run from status. The transition table has the last word.
func (s step) allows(from domain.EscrowStatus) bool {
	return slices.Contains(s.from, from) && from.CanTransition(s.to)
}

// Fund debits the buyer and freezes the amount in escrow.
func (e *Engine) Fund(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error) {
	return e.mutate(ctx, txID, actorID, fundStep, func(tx *domain.EscrowTransaction, now time.Time) ([]movement, error) {
		if actorID != tx.BuyerID {
			return nil, domain.ErrUnauthorizedActor.Newf("only the buyer can fund escrow %s", tx.ID)
		}
		tx.FundedAt = &now
		return []movement{{ownerID: tx.BuyerID, amount: tx.Amount, debit: true}}, nil
	})
}

// MarkDelivered records the seller's delivery.
func (e *Engine) MarkDelivered(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error) {
	return e.mutate(ctx, txID, actorID, deliverStep, func(tx *domain.EscrowTransaction, now time.Time) ([]movement, error) {
		if actorID != tx.SellerID {
			return nil, domain.ErrUnauthorizedActor.Newf("only the seller can mark escrow %s delivered", tx.ID)
		}
		tx.DeliveredAt = &now
		return nil, nil
	})
}

// Release pays the seller net of fee.
func (e *Engine) Release(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error) {
	return e.mutate(ctx, txID, actorID, releaseStep, func(tx *domain.EscrowTransaction, now time.Time) ([]movement, error) {
		if actorID != tx.BuyerID {
			return nil, domain.ErrUnauthorizedActor.Newf("only the buyer can release escrow %s", tx.ID)
		}
		tx.ReleasedAt = &now
		return e.payout(tx), nil
	})
}

// Dispute freezes the escrow pending review. Evidence is validated before anything is stored
// and removed again when the dispute cannot be persisted.
func (e *Engine) Dispute(ctx context.Context, txID, actorID, reason string, evidence []domain.EvidenceFile) (*domain.EscrowTransaction, error) {
	var refs []domain.FileRef
	tx, err := e.mutate(ctx, txID, actorID, disputeStep, func(tx *domain.EscrowTransaction, now time.Time) ([]movement, error) {
		if !tx.IsParty(actorID) {
			return nil, domain.ErrUnauthorizedActor.Newf("%s is not a party of escrow %s", actorID, tx.ID)
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return nil, domain.ErrValidation.New("dispute reason is required")
		}
		if err := domain.ValidateEvidence(evidence); err != nil {
			return nil, err
		}

		if len(evidence) > 0 {
			stored, err := e.evidence.Store(ctx, evidence)
			if err != nil {
				return nil, errors.Wrap(err, "store dispute evidence")
			}
			refs = stored
		}

		tx.Dispute = &domain.Dispute{
			RaisedBy: actorID,
			Reason:   reason,
			Evidence: refs,
			RaisedAt: now,
		}
		return nil, nil
	})
	if err != nil && len(refs) > 0 {
		if rmErr := e.evidence.Remove(context.WithoutCancel(ctx), refs); rmErr != nil {
			e.l.Error("failed to remove evidence of unsaved dispute",
				zap.String("escrow_id", txID),
				zap.Error(rmErr))
		}
	}
	return tx, err
}

// Cancel abandons an escrow that was never funded.
func (e *Engine) Cancel(ctx context.Context, txID, actorID string) (*domain.EscrowTransaction, error) {
	return e.mutate(ctx, txID, actorID, cancelStep, func(tx *domain.EscrowTransaction, now time.Time) ([]movement, error) {
		if !tx.IsParty(actorID) {
			return nil, domain.ErrUnauthorizedActor.Newf("%s is not a party of escrow %s", actorID, tx.ID)
		}
		tx.CanceledAt = &now
		return nil, nil
	})
}

// Resolve settles a disputed escrow: release pays the seller, refund returns the full amount to the buyer.
func (e *Engine) Resolve(ctx context.Context, txID, resolverID string, resolution domain.Resolution) (*domain.EscrowTransaction, error) {
	var target step
	switch resolution {
	case domain.ResolutionRelease:
		target = resolveReleaseStep
	case domain.ResolutionRefund:
		target = resolveRefundStep
	default:
		return nil, domain.ErrValidation.Newf("unknown resolution %q", resolution)
	}
	if !e.admins.IsAdmin(resolverID) {
		return nil, domain.ErrUnauthorizedActor.Newf("%s cannot resolve disputes", resolverID)
	}

	return e.mutate(ctx, txID, resolverID, target, func(tx *domain.EscrowTransaction, now time.Time) ([]movement, error) {
		if tx.Dispute == nil {
			return nil, errors.Errorf("disputed escrow %s has no dispute record", tx.ID)
		}
		tx.Dispute.Resolution = resolution
		tx.Dispute.ResolvedBy = resolverID
		tx.Dispute.ResolvedAt = &now

		if resolution == domain.ResolutionRefund {
			return []movement{{ownerID: tx.BuyerID, amount: tx.Amount}}, nil
		}
		tx.ReleasedAt = &now
		return e.payout(tx), nil
	})
}

// Get returns one escrow.
func (e *Engine) Get(ctx context.Context, txID string) (*domain.EscrowTransaction, error) {
	return e.repo.Get(ctx, txID)
}

// List returns every escrow in which partyID is buyer or seller.
func (e *Engine) List(ctx context.Context, partyID string) ([]*domain.EscrowTransaction, error) {
	return e.repo.ListByParty(ctx, partyID)
}

// mutate loads the escrow under its lock, checks that the step may start from its current
// status, lets apply check the actor and stamp the record, moves funds and persists. Funds are
// moved back when persisting fails.
func (e *Engine) mutate(
	ctx context.Context,
	txID, actorID string,
	st step,
	apply func(tx *domain.EscrowTransaction, now time.Time) ([]movement, error),
) (*domain.EscrowTransaction, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorizedActor.New("actor id is required")
	}

	unlock := e.locks.Lock(txID)
	defer unlock()

	tx, err := e.repo.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	from, to := tx.Status, st.to
	if !st.allows(from) {
		return nil, domain.ErrInvalidStateTransition.Newf("cannot %s escrow %s in state %s", st.name, tx.ID, from)
	}

	now := e.now()
	moves, err := apply(tx, now)
	if err != nil {
		return nil, err
	}

	rollback, err := e.move(ctx, moves)
	if err != nil {
		return nil, errors.Wrapf(err, "escrow %s %s -> %s", tx.ID, from, to)
	}

	tx.Status = to
	if err := e.repo.Save(ctx, tx); err != nil {
		rollback()
		return nil, errors.Wrapf(err, "persist escrow %s", tx.ID)
	}

	e.l.Info("escrow transition",
		zap.String("escrow_id", tx.ID),
		zap.String("actor_id", actorID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	e.notify(ctx, tx, actorID, from, noteFor(tx, to))

	return tx.Clone(), nil
}

// payout credits the seller's proceeds and the platform fee.
func (e *Engine) payout(tx *domain.EscrowTransaction) []movement {
	moves := []movement{{ownerID: tx.SellerID, amount: tx.SellerProceeds()}}
	if e.opts.FeeAccount != "" {
		moves = append(moves, movement{ownerID: e.opts.FeeAccount, amount: tx.Fee()})
	}
	return moves
}

func (e *Engine) notify(ctx context.Context, tx *domain.EscrowTransaction, actorID string, from domain.EscrowStatus, note string) {
	if e.notifier == nil {
		return
	}
	event := domain.NewEscrowEvent(tx, actorID, from, e.now())
	event.Note = note
	e.notifier.Notify(ctx, event)
}

func noteFor(tx *domain.EscrowTransaction, to domain.EscrowStatus) string {
	if to == domain.EscrowDisputed && tx.Dispute != nil {
		return tx.Dispute.Reason
	}
	return ""
}

func validateFeePercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return domain.ErrValidation.Newf("fee percent must be in [0, 100), got %s", p)
	}
	return nil
}
