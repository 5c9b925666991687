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

type fakeDedupStore struct {
	logs       []para.CaptureLog
	contentHit *para.Ref
	embeddings []para.Embedding
	searchErr  error
}

func (f *fakeDedupStore) RecentByMessage(_ context.Context, message, excludeID string, _ time.Time, _ int) ([]para.CaptureLog, error) {
	var out []para.CaptureLog
	for _, row := range f.logs {
		if row.Message == message && row.ID != excludeID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeDedupStore) SearchContent(_ context.Context, _ []para.Collection, _ string) (*para.Ref, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.contentHit, nil
}

func (f *fakeDedupStore) ListEmbeddings(_ context.Context, _ []para.Collection) ([]para.Embedding, error) {
	return f.embeddings, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f fakeEmbedder) Embed(context.Context, string, string) ([]float32, error) {
	return f.vector, f.err
}

func newTestDetector(store DedupStore, embedder Embedder) *Detector {
	return NewDetector(store, embedder, "embed-model", "embed-fallback", 0.9, 48*time.Hour)
}

func TestExactDuplicateOnCommittedWrite(t *testing.T) {
	fs := &fakeDedupStore{logs: []para.CaptureLog{{
		ID:         "log-1",
		Message:    "ซื้อนมหน่อย",
		ActionType: para.ActionCreatePara,
		Status:     para.StatusSuccess,
		CreatedAt:  time.Now().Add(-time.Hour),
	}}}
	d := newTestDetector(fs, fakeEmbedder{err: errors.New("no embeddings in this test")})

	v := d.Check(context.Background(), "ซื้อนมหน่อย", "log-2")
	assert.True(t, v.IsDuplicate)
	assert.Equal(t, MethodExact, v.Method)
}

func TestExactRepeatOfFailedAttemptIsNotDuplicate(t *testing.T) {
	fs := &fakeDedupStore{logs: []para.CaptureLog{{
		ID:         "log-1",
		Message:    "บันทึกไอเดียใหม่",
		ActionType: para.ActionChat,
		Status:     para.StatusFailed,
		ResultJSON: `{"created_items":[]}`,
		CreatedAt:  time.Now().Add(-time.Minute),
	}}}
	d := newTestDetector(fs, fakeEmbedder{err: errors.New("skip semantic")})

	v := d.Check(context.Background(), "บันทึกไอเดียใหม่", "log-2")
	assert.False(t, v.IsDuplicate)
	assert.True(t, v.Ignored)
	assert.NotEmpty(t, v.IgnoredReason)
}

func TestExcludedInFlightRowIgnored(t *testing.T) {
	fs := &fakeDedupStore{logs: []para.CaptureLog{{
		ID:         "log-current",
		Message:    "hello",
		ActionType: para.ActionCreatePara,
		Status:     para.StatusSuccess,
	}}}
	d := newTestDetector(fs, fakeEmbedder{err: errors.New("skip semantic")})

	v := d.Check(context.Background(), "hello", "log-current")
	assert.False(t, v.IsDuplicate)
	assert.Equal(t, MethodNone, v.Method)
}

func TestURLMatchWins(t *testing.T) {
	fs := &fakeDedupStore{contentHit: &para.Ref{
		Collection: para.CollectionResources, ID: "r1", Title: "Go Blog",
	}}
	d := newTestDetector(fs, fakeEmbedder{err: errors.New("should not reach semantic")})

	v := d.Check(context.Background(), "เก็บ https://go.dev/blog ไว้หน่อย", "")
	require.True(t, v.IsDuplicate)
	assert.Equal(t, MethodURL, v.Method)
	require.NotNil(t, v.Matched)
	assert.Equal(t, "r1", v.Matched.ID)
}

func TestSemanticMatchAboveThreshold(t *testing.T) {
	fs := &fakeDedupStore{embeddings: []para.Embedding{
		{Collection: para.CollectionProjects, ItemID: "p1", Title: "Trip planning", Vector: []float32{1, 0, 0}},
		{Collection: para.CollectionTasks, ItemID: "t1", Title: "Unrelated", Vector: []float32{0, 1, 0}},
	}}
	d := newTestDetector(fs, fakeEmbedder{vector: []float32{0.99, 0.01, 0}})

	v := d.Check(context.Background(), "วางแผนทริป", "")
	require.True(t, v.IsDuplicate)
	assert.Equal(t, MethodSemantic, v.Method)
	assert.Equal(t, "p1", v.Matched.ID)
	assert.Greater(t, v.Similarity, 0.9)
}

func TestSemanticBelowThresholdIsClean(t *testing.T) {
	fs := &fakeDedupStore{embeddings: []para.Embedding{
		{Collection: para.CollectionProjects, ItemID: "p1", Title: "Trip", Vector: []float32{1, 0, 0}},
	}}
	d := newTestDetector(fs, fakeEmbedder{vector: []float32{0.5, 0.86, 0}})

	v := d.Check(context.Background(), "something else entirely", "")
	assert.False(t, v.IsDuplicate)
	assert.Equal(t, MethodNone, v.Method)
}

func TestEmbeddingFailureDegradesToNoSignal(t *testing.T) {
	fs := &fakeDedupStore{}
	d := newTestDetector(fs, fakeEmbedder{err: errors.New("rate limited")})

	v := d.Check(context.Background(), "a perfectly normal message", "")
	assert.False(t, v.IsDuplicate)
	assert.Equal(t, MethodNone, v.Method)
}

func TestSearchFailureDegrades(t *testing.T) {
	fs := &fakeDedupStore{searchErr: errors.New("db locked")}
	d := newTestDetector(fs, fakeEmbedder{err: errors.New("skip semantic")})

	v := d.Check(context.Background(), "see https://example.com", "")
	assert.False(t, v.IsDuplicate)
}

func TestCosineSimilarity(t *testing.T) {
	sim, ok := cosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim, 0.0001)

	sim, ok = cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 0.0, sim, 0.0001)

	_, ok = cosineSimilarity([]float32{1, 0}, []float32{1})
	assert.False(t, ok)

	_, ok = cosineSimilarity([]float32{0, 0}, []float32{1, 0})
	assert.False(t, ok)
}
