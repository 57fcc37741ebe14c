// Package escrows persists escrow transactions, including terminal ones kept for history.
package escrows

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/storage/records"
)

const (
	// DefaultDir default location of the escrow WAL.
	DefaultDir = "./wal/escrows"
	keyPrefix  = "escrow_"
)

// WALStore is a WAL-backed escrow repository.
type WALStore struct {
	records *records.Store[domain.EscrowTransaction]
}

// NewWALStore opens or replays the escrow store under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	rs, err := records.Open[domain.EscrowTransaction](dir, keyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "open escrow store")
	}
	return &WALStore{records: rs}, nil
}

// Get loads an escrow by id. Missing ids yield domain.ErrNotFound.
func (s *WALStore) Get(_ context.Context, id string) (*domain.EscrowTransaction, error) {
	tx, ok, err := s.records.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound.Newf("escrow %s", id)
	}
	if !tx.Status.IsValid() {
		return nil, errors.Errorf("escrow %s has unknown status %q", id, tx.Status)
	}
	return tx.Clone(), nil
}

// Save persists the current version of the escrow.
func (s *WALStore) Save(_ context.Context, tx *domain.EscrowTransaction) error {
	if tx == nil {
		return errors.New("escrow is nil")
	}
	if !tx.Status.IsValid() {
		return domain.ErrValidation.Newf("escrow %s has unknown status %q", tx.ID, tx.Status)
	}
	return s.records.Put(tx.ID, *tx)
}

// ListByParty returns escrows where partyID is buyer or seller. An empty partyID lists all.
func (s *WALStore) ListByParty(_ context.Context, partyID string) ([]*domain.EscrowTransaction, error) {
	txs, err := s.records.List(func(tx domain.EscrowTransaction) bool {
		return partyID == "" || tx.IsParty(partyID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.EscrowTransaction, 0, len(txs))
	for i := range txs {
		out = append(out, txs[i].Clone())
	}
	return out, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	return s.records.Close()
}
