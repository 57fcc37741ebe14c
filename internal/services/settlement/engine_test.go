package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/services/ledger"
	"github.com/vadiminshakov/remit/internal/services/users"
	"github.com/vadiminshakov/remit/internal/storage/settlements"
	"github.com/vadiminshakov/remit/internal/storage/wallets"
	"go.uber.org/zap"
)

const (
	initiator = "ops-desk"
	partner   = "acme-partner"
	admin     = "cfo"
	admin2    = "cto"
	treasury  = "treasury"
	evmAddr   = "0x52908400098527886e0f7030069857d2e4169ee7"
)

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) BroadcastTransfer(ctx context.Context, tx domain.MultiSigTransaction) error {
	return m.Called(ctx, tx).Error(0)
}

type fixture struct {
	engine      *Engine
	ledger      *ledger.Ledger
	broadcaster *mockBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := settlements.NewWALStore(t.TempDir())
	require.NoError(t, err)
	walletStore, err := wallets.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
		_ = walletStore.Close()
	})

	dir, err := users.NewDirectory([]domain.User{
		{ID: initiator, Username: "ops"},
		{ID: partner, Username: "acme"},
		{ID: admin},
		{ID: admin2},
	}, []string{admin, admin2, initiator})
	require.NoError(t, err)

	lg := ledger.New(walletStore, nil, zap.NewNop())
	b := &mockBroadcaster{}

	engine, err := New(Deps{
		Repo:        repo,
		Ledger:      lg,
		Users:       dir,
		Admins:      dir,
		Broadcaster: b,
		Logger:      zap.NewNop(),
	}, treasury)
	require.NoError(t, err)

	require.NoError(t, lg.Credit(context.Background(), treasury, domain.MustMoney("50000", "USDT")))
	return &fixture{engine: engine, ledger: lg, broadcaster: b}
}

func (f *fixture) initiate(t *testing.T, amount string) *domain.MultiSigTransaction {
	t.Helper()
	tx, err := f.engine.Initiate(context.Background(), InitiateRequest{
		InitiatorID:        initiator,
		CounterpartyID:     "acme",
		Amount:             domain.MustMoney(amount, "USDT"),
		DestinationAddress: evmAddr,
	})
	require.NoError(t, err)
	return tx
}

func (f *fixture) treasuryBalance(t *testing.T) string {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), treasury, "USDT")
	require.NoError(t, err)
	return b.Amount.String()
}

func TestEngine_TwoSignaturesComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.broadcaster.On("BroadcastTransfer", mock.Anything, mock.MatchedBy(func(tx domain.MultiSigTransaction) bool {
		return tx.Status == domain.SettlementCompleted && tx.FullySigned()
	})).Return(nil).Once()

	tx := f.initiate(t, "10000")
	assert.Equal(t, domain.SettlementPendingPartner, tx.Status)
	assert.Equal(t, partner, tx.CounterpartyID)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", tx.DestinationAddress)

	tx, err := f.engine.Sign(ctx, tx.ID, partner)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPendingAdmin, tx.Status, "a single signature never completes")
	assert.Equal(t, "50000", f.treasuryBalance(t))

	tx, err = f.engine.Sign(ctx, tx.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompleted, tx.Status)
	assert.True(t, tx.FullySigned())
	assert.Equal(t, "40000", f.treasuryBalance(t))

	_, err = f.engine.Sign(ctx, tx.ID, admin2)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	f.broadcaster.AssertExpectations(t)
}

func TestEngine_RejectionIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tx := f.initiate(t, "10000")
	tx, err := f.engine.Sign(ctx, tx.ID, partner)
	require.NoError(t, err)

	_, err = f.engine.Reject(ctx, tx.ID, admin, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	tx, err = f.engine.Reject(ctx, tx.ID, admin, "beneficiary failed screening")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementRejected, tx.Status)
	require.NotNil(t, tx.Rejection)
	assert.Equal(t, admin, tx.Rejection.SignerID)

	_, err = f.engine.Sign(ctx, tx.ID, admin)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = f.engine.Reject(ctx, tx.ID, admin, "again")
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	assert.Equal(t, "50000", f.treasuryBalance(t))
	f.broadcaster.AssertNotCalled(t, "BroadcastTransfer", mock.Anything, mock.Anything)
}

func TestEngine_SignerRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx := f.initiate(t, "100")

	_, err := f.engine.Sign(ctx, tx.ID, admin)
	require.ErrorIs(t, err, domain.ErrUnauthorizedActor, "admin cannot take the partner slot")

	_, err = f.engine.Sign(ctx, tx.ID, partner)
	require.NoError(t, err)

	tests := []struct {
		name   string
		signer string
	}{
		{name: "partner twice", signer: partner},
		{name: "initiator, even if admin", signer: initiator},
		{name: "non admin", signer: "stranger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Sign(ctx, tx.ID, tt.signer)
			require.ErrorIs(t, err, domain.ErrUnauthorizedActor)
		})
	}

	_, err = f.engine.Reject(ctx, tx.ID, "stranger", "no")
	require.ErrorIs(t, err, domain.ErrUnauthorizedActor)

	stored, err := f.engine.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPendingAdmin, stored.Status)
}

func TestEngine_InitiatorAndCounterpartyMayReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.initiate(t, "100")
	tx, err := f.engine.Reject(ctx, first.ID, partner, "wrong amount")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementRejected, tx.Status)

	second := f.initiate(t, "100")
	tx, err = f.engine.Reject(ctx, second.ID, initiator, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementRejected, tx.Status)
}

func TestEngine_InsufficientTreasury(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tx := f.initiate(t, "60000")
	_, err := f.engine.Sign(ctx, tx.ID, partner)
	require.NoError(t, err)

	_, err = f.engine.Sign(ctx, tx.ID, admin)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	stored, err := f.engine.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPendingAdmin, stored.Status)
	assert.Nil(t, stored.AdminSignature)
}

func TestEngine_BroadcastFailureKeepsCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.broadcaster.On("BroadcastTransfer", mock.Anything, mock.Anything).Return(errors.New("rail down"))

	tx := f.initiate(t, "500")
	_, err := f.engine.Sign(ctx, tx.ID, partner)
	require.NoError(t, err)

	tx, err = f.engine.Sign(ctx, tx.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompleted, tx.Status)
	assert.Equal(t, "49500", f.treasuryBalance(t))
}

func TestEngine_ConcurrentAdminSignDebitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.broadcaster.On("BroadcastTransfer", mock.Anything, mock.Anything).Return(nil)

	tx := f.initiate(t, "1000")
	_, err := f.engine.Sign(ctx, tx.ID, partner)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, signer := range []string{admin, admin2} {
		wg.Add(1)
		go func(i int, signer string) {
			defer wg.Done()
			_, errs[i] = f.engine.Sign(ctx, tx.ID, signer)
		}(i, signer)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, "49000", f.treasuryBalance(t))
	f.broadcaster.AssertNumberOfCalls(t, "BroadcastTransfer", 1)
}

func TestEngine_InitiateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name    string
		req     InitiateRequest
		wantErr error
	}{
		{
			name:    "bad evm address",
			req:     InitiateRequest{InitiatorID: initiator, CounterpartyID: partner, Amount: domain.MustMoney("1", "USDT"), DestinationAddress: "0x123"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "fiat needs a reference",
			req:     InitiateRequest{InitiatorID: initiator, CounterpartyID: partner, Amount: domain.MustMoney("1", "EUR"), DestinationAddress: " "},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "zero amount",
			req:     InitiateRequest{InitiatorID: initiator, CounterpartyID: partner, Amount: domain.Zero("USDT"), DestinationAddress: evmAddr},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "self transfer",
			req:     InitiateRequest{InitiatorID: partner, CounterpartyID: "acme", Amount: domain.MustMoney("1", "USDT"), DestinationAddress: evmAddr},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown counterparty",
			req:     InitiateRequest{InitiatorID: initiator, CounterpartyID: "ghost", Amount: domain.MustMoney("1", "USDT"), DestinationAddress: evmAddr},
			wantErr: domain.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Initiate(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	tx, err := f.engine.Initiate(ctx, InitiateRequest{
		InitiatorID:        initiator,
		CounterpartyID:     partner,
		Amount:             domain.MustMoney("250", "EUR"),
		DestinationAddress: "DE89370400440532013000",
	})
	require.NoError(t, err)
	assert.Equal(t, "DE89370400440532013000", tx.DestinationAddress)

	list, err := f.engine.List(ctx, partner)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEngine_SignFollowsTransitionTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	saved := domain.SettlementTransitions[domain.SettlementPendingAdmin]
	domain.SettlementTransitions[domain.SettlementPendingAdmin] = []domain.SettlementStatus{domain.SettlementRejected}
	t.Cleanup(func() { domain.SettlementTransitions[domain.SettlementPendingAdmin] = saved })

	tx := f.initiate(t, "100")
	tx, err := f.engine.Sign(ctx, tx.ID, partner)
	require.NoError(t, err)

	_, err = f.engine.Sign(ctx, tx.ID, admin)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	stored, err := f.engine.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPendingAdmin, stored.Status)
	assert.Nil(t, stored.AdminSignature)
	assert.Equal(t, "50000", f.treasuryBalance(t))
	f.broadcaster.AssertNotCalled(t, "BroadcastTransfer", mock.Anything, mock.Anything)
}
