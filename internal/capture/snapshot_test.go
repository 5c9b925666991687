package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

type fakeContextStore struct {
	tasksErr error
	turns    []para.Turn
}

func (f *fakeContextStore) ListOpenTasks(context.Context, int) ([]para.Item, error) {
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	return []para.Item{{Title: "open task"}}, nil
}

func (f *fakeContextStore) ListRecent(_ context.Context, collection para.Collection, _ int) ([]para.Item, error) {
	return []para.Item{{Collection: collection, Title: string(collection) + " item"}}, nil
}

func (f *fakeContextStore) ListAccounts(context.Context) ([]para.Account, error) {
	return []para.Account{{Name: "Cash"}}, nil
}

func (f *fakeContextStore) ListModules(context.Context) ([]para.Module, error) {
	return nil, nil
}

func (f *fakeContextStore) RecentTurns(context.Context, string, time.Time, int) ([]para.Turn, error) {
	return f.turns, nil
}

func (f *fakeContextStore) ListKnowledge(_ context.Context, kind string, _ int) ([]para.Knowledge, error) {
	return []para.Knowledge{{Kind: kind, Content: kind + " entry"}}, nil
}

func TestLoadGathersAllReads(t *testing.T) {
	fs := &fakeContextStore{turns: []para.Turn{{Role: "user", Content: "hi"}}}
	l := NewLoader(fs, 30*time.Minute, 3)

	snap := l.Load(context.Background(), ChannelTelegram)
	require.NotNil(t, snap)
	assert.Len(t, snap.OpenTasks, 1)
	assert.Len(t, snap.Projects, 1)
	assert.Len(t, snap.Areas, 1)
	assert.Len(t, snap.Resources, 1)
	assert.Len(t, snap.Accounts, 1)
	assert.Len(t, snap.Turns, 1)
	assert.Len(t, snap.Facts, 1)
	assert.Len(t, snap.Lessons, 1)
}

func TestLoadDegradesOnSubReadFailure(t *testing.T) {
	fs := &fakeContextStore{tasksErr: errors.New("db locked")}
	l := NewLoader(fs, 30*time.Minute, 3)

	snap := l.Load(context.Background(), ChannelAPI)
	require.NotNil(t, snap)
	assert.Empty(t, snap.OpenTasks)
	assert.Len(t, snap.Projects, 1)
}
