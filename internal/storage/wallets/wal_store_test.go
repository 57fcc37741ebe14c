package wallets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/remit/internal/domain"
)

func TestWALStore_Accounts(t *testing.T) {
	ctx := context.Background()
	s, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Get(ctx, "alice", "USD")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, domain.WalletAccount{OwnerID: "alice", Balance: domain.MustMoney("10", "USD")}))
	require.NoError(t, s.Save(ctx, domain.WalletAccount{OwnerID: "alice", Balance: domain.MustMoney("1", "EUR")}))
	require.NoError(t, s.Save(ctx, domain.WalletAccount{OwnerID: "bob", Balance: domain.MustMoney("2", "USD")}))

	acc, found, err := s.Get(ctx, "alice", "USD")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "10", acc.Balance.Amount.String())

	list, err := s.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
