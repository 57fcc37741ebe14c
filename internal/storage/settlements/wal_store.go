// Package settlements persists co-signed treasury transfers.
package settlements

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/storage/records"
)

const (
	// DefaultDir default location of the settlement WAL.
	DefaultDir = "./wal/settlements"
	keyPrefix  = "multisig_"
)

// WALStore is a WAL-backed multisig repository.
type WALStore struct {
	records *records.Store[domain.MultiSigTransaction]
}

// NewWALStore opens or replays the settlement store under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	rs, err := records.Open[domain.MultiSigTransaction](dir, keyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "open settlement store")
	}
	return &WALStore{records: rs}, nil
}

// Get loads a transfer by id. Missing ids yield domain.ErrNotFound.
func (s *WALStore) Get(_ context.Context, id string) (*domain.MultiSigTransaction, error) {
	tx, ok, err := s.records.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound.Newf("settlement %s", id)
	}
	return tx.Clone(), nil
}

// Save persists the current version of the transfer.
func (s *WALStore) Save(_ context.Context, tx *domain.MultiSigTransaction) error {
	if tx == nil {
		return errors.New("settlement is nil")
	}
	return s.records.Put(tx.ID, *tx)
}

// ListByParty returns transfers initiated by or addressed to partyID.
// An empty partyID lists everything.
func (s *WALStore) ListByParty(_ context.Context, partyID string) ([]*domain.MultiSigTransaction, error) {
	txs, err := s.records.List(func(tx domain.MultiSigTransaction) bool {
		return partyID == "" || tx.InitiatingPartyID == partyID || tx.CounterpartyID == partyID
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.MultiSigTransaction, 0, len(txs))
	for i := range txs {
		out = append(out, txs[i].Clone())
	}
	return out, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	return s.records.Close()
}
