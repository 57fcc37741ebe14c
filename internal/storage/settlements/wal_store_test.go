package settlements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/remit/internal/domain"
)

func TestWALStore_SaveReplayList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewWALStore(dir)
	require.NoError(t, err)

	tx := &domain.MultiSigTransaction{
		ID:                 "s1",
		InitiatingPartyID:  "alice",
		CounterpartyID:     "bob",
		Amount:             domain.MustMoney("250", "USD"),
		DestinationAddress: "DE89370400440532013000",
		Status:             domain.SettlementPendingPartner,
		CreatedAt:          time.Now().UTC(),
	}
	require.NoError(t, s.Save(ctx, tx))

	tx.Status = domain.SettlementPendingAdmin
	tx.PartnerSignature = &domain.Signature{SignerID: "bob", SignedAt: time.Now().UTC()}
	require.NoError(t, s.Save(ctx, tx))
	require.Error(t, s.Save(ctx, nil))
	require.NoError(t, s.Close())

	s, err = NewWALStore(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPendingAdmin, got.Status)
	require.NotNil(t, got.PartnerSignature)
	assert.Equal(t, "bob", got.PartnerSignature.SignerID)

	got.Status = domain.SettlementRejected
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPendingAdmin, again.Status, "Get returns a copy")

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	for party, want := range map[string]int{"alice": 1, "bob": 1, "carol": 0, "": 1} {
		list, err := s.ListByParty(ctx, party)
		require.NoError(t, err)
		assert.Len(t, list, want, party)
	}
}
