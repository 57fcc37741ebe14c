// Package ledger applies atomic debits and credits to wallet accounts.
package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/metrics"
	"github.com/vadiminshakov/remit/pkg/keylock"
	"go.uber.org/zap"
)

const (
	directionDebit  = "debit"
	directionCredit = "credit"
)

// WalletRepository persists wallet accounts.
type WalletRepository interface {
	Get(ctx context.Context, ownerID string, currency domain.Currency) (domain.WalletAccount, bool, error)
	Save(ctx context.Context, account domain.WalletAccount) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.WalletAccount, error)
}

// Ledger serializes movements per owner and currency. A missing account has a zero balance.
type Ledger struct {
	repo    WalletRepository
	locks   *keylock.Locker
	metrics *metrics.Metrics
	l       *zap.Logger
	now     func() time.Time
}

// New creates a Ledger. m may be nil.
func New(repo WalletRepository, m *metrics.Metrics, l *zap.Logger) *Ledger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Ledger{
		repo:    repo,
		locks:   keylock.New(),
		metrics: m,
		l:       l,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Debit decrements the balance, failing with ErrInsufficientFunds when it would go negative.
func (lg *Ledger) Debit(ctx context.Context, ownerID string, amount domain.Money) error {
	if err := validate(ownerID, amount); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return domain.ErrValidation.Newf("debit amount must be positive, got %s", amount)
	}
	amount = amount.Round()

	unlock := lg.locks.Lock(domain.AccountKey(ownerID, amount.Currency))
	defer unlock()

	account, err := lg.load(ctx, ownerID, amount.Currency)
	if err != nil {
		return err
	}

	balance, err := account.Balance.Sub(amount)
	if err != nil {
		return errors.Wrapf(err, "debit %s from %s", amount, ownerID)
	}

	return lg.store(ctx, account, balance, directionDebit, amount)
}

// Credit increments the balance, opening the account on first use.
func (lg *Ledger) Credit(ctx context.Context, ownerID string, amount domain.Money) error {
	if err := validate(ownerID, amount); err != nil {
		return err
	}
	amount = amount.Round()

	unlock := lg.locks.Lock(domain.AccountKey(ownerID, amount.Currency))
	defer unlock()

	account, err := lg.load(ctx, ownerID, amount.Currency)
	if err != nil {
		return err
	}

	balance, err := account.Balance.Add(amount)
	if err != nil {
		return err
	}

	return lg.store(ctx, account, balance, directionCredit, amount)
}

// Balance returns the current balance; zero for accounts never credited.
func (lg *Ledger) Balance(ctx context.Context, ownerID string, currency domain.Currency) (domain.Money, error) {
	account, err := lg.load(ctx, ownerID, currency)
	if err != nil {
		return domain.Money{}, err
	}
	return account.Balance, nil
}

// Accounts lists every currency account of the owner.
func (lg *Ledger) Accounts(ctx context.Context, ownerID string) ([]domain.WalletAccount, error) {
	accounts, err := lg.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrapf(err, "list accounts of %s", ownerID)
	}
	return accounts, nil
}

func (lg *Ledger) load(ctx context.Context, ownerID string, currency domain.Currency) (domain.WalletAccount, error) {
	account, found, err := lg.repo.Get(ctx, ownerID, currency)
	if err != nil {
		return domain.WalletAccount{}, errors.Wrapf(err, "load wallet %s", domain.AccountKey(ownerID, currency))
	}
	if !found {
		return domain.WalletAccount{OwnerID: ownerID, Balance: domain.Zero(currency)}, nil
	}
	return account, nil
}

func (lg *Ledger) store(ctx context.Context, account domain.WalletAccount, balance domain.Money, direction string, amount domain.Money) error {
	account.Balance = balance
	account.UpdatedAt = lg.now()

	if err := lg.repo.Save(ctx, account); err != nil {
		return errors.Wrapf(err, "save wallet %s", account.Key())
	}

	lg.metrics.LedgerMovement(direction, amount.Currency.String())
	lg.l.Info("wallet "+direction,
		zap.String("owner_id", account.OwnerID),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()))
	return nil
}

func validate(ownerID string, amount domain.Money) error {
	if ownerID == "" {
		return domain.ErrValidation.New("owner id is required")
	}
	if amount.Currency == "" {
		return domain.ErrValidation.New("currency is required")
	}
	if amount.Amount.IsNegative() {
		return domain.ErrValidation.Newf("amount must not be negative, got %s", amount.Amount)
	}
	return nil
}
