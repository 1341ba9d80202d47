package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

func TestRunInTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := New()
	sess := &storex.Session{}
	require.NoError(t, st.CreateSession(ctx, sess))

	boom := errors.New("boom")
	err := st.RunInTx(ctx, func(ctx context.Context, tx storex.Queries) error {
		require.NoError(t, tx.InsertMessage(ctx, &storex.Message{SessionID: sess.ID, Sender: storex.SenderAgent, Content: "hi"}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, st.Messages(sess.ID))

	err = st.RunInTx(ctx, func(ctx context.Context, tx storex.Queries) error {
		return tx.InsertMessage(ctx, &storex.Message{SessionID: sess.ID, Sender: storex.SenderAgent, Content: "hi"})
	})
	require.NoError(t, err)
	assert.Len(t, st.Messages(sess.ID), 1)
}

func TestRecentMessagesOrderAndExclude(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := New()
	sid := uuid.New()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		m := &storex.Message{SessionID: sid, Sender: storex.SenderCustomer, Content: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, st.InsertMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	got, err := st.RecentMessages(ctx, sid, 3, ids[4])
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Content)
	assert.Equal(t, "d", got[2].Content)
}

func TestSumTokensSinceBoundaries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := New()
	sid := uuid.New()
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	from := now.Add(-24 * time.Hour)

	st.AddUsage(sid, 100, from)
	st.AddUsage(sid, 20, from.Add(time.Second))
	st.AddUsage(sid, 3, now)
	st.AddUsage(sid, 4000, now.Add(time.Second))
	st.AddUsage(uuid.New(), 999, now)

	total, err := st.SumTokensSince(ctx, sid, from, now)
	require.NoError(t, err)
	assert.Equal(t, 23, total)
}

func TestFailOnAndClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := New()
	st.FailOn("GetSettings", contractx.ErrInfrastructure)
	_, err := st.GetSettings(ctx)
	require.ErrorIs(t, err, contractx.ErrInfrastructure)

	st.FailOn("GetSettings", nil)
	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, storex.DefaultSettings(), settings)

	require.NoError(t, st.Close())
	_, err = st.GetOrder(ctx, uuid.New())
	require.ErrorIs(t, err, contractx.ErrInfrastructure)
}
