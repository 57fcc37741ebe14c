// Package wallets persists wallet accounts.
package wallets

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/storage/records"
)

const (
	// DefaultDir default location of the wallet WAL.
	DefaultDir = "./wal/wallets"
	keyPrefix  = "wallet_"
)

// WALStore keeps wallet accounts keyed by owner and currency.
type WALStore struct {
	records *records.Store[domain.WalletAccount]
}

// NewWALStore opens or replays the wallet store under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	rs, err := records.Open[domain.WalletAccount](dir, keyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "open wallet store")
	}
	return &WALStore{records: rs}, nil
}

// Get returns the account; found is false when it was never credited.
func (s *WALStore) Get(_ context.Context, ownerID string, currency domain.Currency) (domain.WalletAccount, bool, error) {
	return s.records.Get(domain.AccountKey(ownerID, currency))
}

// Save persists the account balance.
func (s *WALStore) Save(_ context.Context, account domain.WalletAccount) error {
	return s.records.Put(account.Key(), account)
}

// ListByOwner returns every currency account of the owner.
func (s *WALStore) ListByOwner(_ context.Context, ownerID string) ([]domain.WalletAccount, error) {
	return s.records.List(func(a domain.WalletAccount) bool {
		return a.OwnerID == ownerID
	})
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	return s.records.Close()
}
