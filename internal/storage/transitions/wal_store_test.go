package transitions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/remit/internal/domain"
)

func TestWALStore_EventsAfter(t *testing.T) {
	dir := t.TempDir()

	s, err := NewWALStore(dir)
	require.NoError(t, err)

	events := []domain.TransitionEvent{
		{Timestamp: time.Now(), Machine: domain.MachineEscrow, EntityID: "e1", From: "awaiting_funding", To: "in_escrow"},
		{Timestamp: time.Now(), Machine: domain.MachineSettlement, EntityID: "s1", From: "pending_partner", To: "pending_admin"},
		{Timestamp: time.Now(), Machine: domain.MachineEscrow, EntityID: "e1", From: "in_escrow", To: "disputed"},
	}
	for _, e := range events {
		require.NoError(t, s.Save(e))
	}

	all, err := s.EventsAfter(0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	tail, err := s.EventsAfter(all[0].Index)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "s1", tail[0].Event.EntityID)
	require.NoError(t, s.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	history := reopened.History(domain.MachineEscrow, "e1")
	require.Len(t, history, 2)
	assert.Equal(t, "disputed", history[1].To)
}

func TestWALStore_RequiresEntityID(t *testing.T) {
	s, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.Error(t, s.Save(domain.TransitionEvent{Machine: domain.MachineEscrow}))
}
