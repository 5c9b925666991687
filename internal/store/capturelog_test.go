package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestClaimFreshEvent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	row, claimed, replay, err := st.Claim(ctx, "telegram", "evt-1", "hello", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.False(t, replay)
	assert.Equal(t, para.StatusProcessing, row.Status)
}

func TestClaimRedeliveryWhileProcessing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, claimed, _, err := st.Claim(ctx, "telegram", "evt-1", "hello", 90*time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	// Second delivery: row is fresh processing, must not be reclaimed.
	_, claimed, replay, err := st.Claim(ctx, "telegram", "evt-1", "hello", 90*time.Second)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.False(t, replay)
}

func TestClaimReplaysTerminalResult(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, claimed, _, err := st.Claim(ctx, "telegram", "evt-1", "hello", 90*time.Second)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, st.FinalizeLog(ctx, first.ID, para.ActionChat, para.StatusSuccess, `{"reply":"hi"}`))

	row, claimed, replay, err := st.Claim(ctx, "telegram", "evt-1", "hello", 90*time.Second)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.True(t, replay)
	assert.Equal(t, para.StatusSuccess, row.Status)
	assert.Equal(t, `{"reply":"hi"}`, row.ResultJSON)
}

func TestClaimReclaimsStaleProcessingRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, claimed, _, err := st.Claim(ctx, "telegram", "evt-1", "hello", 90*time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	// With a zero staleness window every processing row is already stale.
	time.Sleep(10 * time.Millisecond)
	_, claimed, replay, err := st.Claim(ctx, "telegram", "evt-1", "hello again", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.False(t, replay)

	row, err := st.GetLogByEvent(ctx, "telegram", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "hello again", row.Message)
}

func TestClaimWithoutEventIDAlwaysNewRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, claimed, _, err := st.Claim(ctx, "api", "", "same text", 90*time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	b, claimed, _, err := st.Claim(ctx, "api", "", "same text", 90*time.Second)
	require.NoError(t, err)
	require.True(t, claimed)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestClaimSeparateChannelsDoNotCollide(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, claimed, _, err := st.Claim(ctx, "telegram", "evt-1", "x", 90*time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	_, claimed, _, err = st.Claim(ctx, "api", "evt-1", "x", 90*time.Second)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRecentByMessageExcludesInFlightRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, _, _, err := st.Claim(ctx, "api", "evt-1", "ซื้อนม", 90*time.Second)
	require.NoError(t, err)
	require.NoError(t, st.FinalizeLog(ctx, first.ID, para.ActionCreatePara, para.StatusSuccess, `{}`))

	current, _, _, err := st.Claim(ctx, "api", "evt-2", "ซื้อนม", 90*time.Second)
	require.NoError(t, err)

	rows, err := st.RecentByMessage(ctx, "ซื้อนม", current.ID, time.Now().Add(-time.Hour).UTC(), 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].ID)
}

func TestRecentLogs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		_, _, _, err := st.Claim(ctx, "api", id, "msg "+id, 90*time.Second)
		require.NoError(t, err)
	}
	rows, err := st.RecentLogs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
