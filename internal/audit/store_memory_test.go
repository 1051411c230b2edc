package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "permit/pkg/domain"
	txcontext "permit/pkg/platform/tx"
)

func newTestEntry(actionType ActionType, risk RiskLevel) Entry {
	target := id.UserID(uuid.New())
	return Entry{
		ID:           id.EntryID(uuid.New()),
		ActorID:      id.UserID(uuid.New()),
		TargetUserID: &target,
		ModuleKey:    "sales",
		ActionKey:    "refund",
		ActionType:   actionType,
		RiskLevel:    risk,
		Details:      Details{"reason": "test"},
		CreatedAt:    time.Now(),
	}
}

func TestLedgerAppendDefaults(t *testing.T) {
	store := NewInMemoryStore()
	ledger := NewLedger(store)

	err := ledger.Append(context.Background(), Entry{
		ActorID:    id.UserID(uuid.New()),
		ActionType: ActionGroupCreated,
	})
	require.NoError(t, err)

	entries, err := ledger.List(context.Background(), Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].ID.IsNil())
	assert.False(t, entries[0].CreatedAt.IsZero())
	assert.Equal(t, RiskLow, entries[0].RiskLevel)
}

func TestLedgerFanoutNonBlocking(t *testing.T) {
	store := NewInMemoryStore()
	fanout := make(chan Entry, 1)
	ledger := NewLedger(store, WithFanout(fanout))

	// Two appends against a one-slot channel: the second fan-out send is
	// dropped but both store writes succeed.
	require.NoError(t, ledger.Append(context.Background(), newTestEntry(ActionGroupJoined, RiskLow)))
	require.NoError(t, ledger.Append(context.Background(), newTestEntry(ActionGroupLeft, RiskLow)))

	assert.Equal(t, 2, store.Count())
	assert.Len(t, fanout, 1)
}

func TestLedgerFanoutWaitsForCommit(t *testing.T) {
	store := NewInMemoryStore()
	fanout := make(chan Entry, 4)
	ledger := NewLedger(store, WithFanout(fanout))

	ctx, hooks := txcontext.WithCommitHooks(context.Background())
	require.NoError(t, ledger.Append(ctx, newTestEntry(ActionGroupCreated, RiskLow)))
	assert.Equal(t, 1, store.Count())
	assert.Len(t, fanout, 0)

	hooks.Run()
	assert.Len(t, fanout, 1)

	// Hooks of a rolled-back transaction never run, so its entry is never
	// published.
	droppedCtx, _ := txcontext.WithCommitHooks(context.Background())
	require.NoError(t, ledger.Append(droppedCtx, newTestEntry(ActionGroupJoined, RiskLow)))
	assert.Len(t, fanout, 1)
}

func TestInMemoryStoreListFilters(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	granted := newTestEntry(ActionPermissionGranted, RiskHigh)
	denied := newTestEntry(ActionAccessDenied, RiskMedium)
	joined := newTestEntry(ActionGroupJoined, RiskLow)
	for _, entry := range []Entry{granted, denied, joined} {
		require.NoError(t, store.Append(ctx, entry))
	}

	byType, err := store.List(ctx, Filter{ActionType: ActionAccessDenied}, 0)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, denied.ID, byType[0].ID)

	byRisk, err := store.List(ctx, Filter{MinRisk: RiskMedium}, 0)
	require.NoError(t, err)
	assert.Len(t, byRisk, 2)

	byTarget, err := store.List(ctx, Filter{TargetUserID: *granted.TargetUserID}, 0)
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, granted.ID, byTarget[0].ID)

	limited, err := store.List(ctx, Filter{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	// Newest first.
	assert.Equal(t, joined.ID, limited[0].ID)
}

func TestRiskLevelOrdering(t *testing.T) {
	assert.True(t, RiskCritical.AtLeast(RiskHigh))
	assert.True(t, RiskMedium.AtLeast(RiskMedium))
	assert.False(t, RiskLow.AtLeast(RiskMedium))
}
