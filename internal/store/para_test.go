package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

func TestCreateAndGetItem(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	item := &para.Item{
		Collection: para.CollectionTasks,
		Title:      "Pay rent",
		Category:   "finance",
		Tags:       []string{"home", "monthly"},
		Related:    []para.Ref{{Collection: para.CollectionProjects, ID: "p1", Title: "Household"}},
		DueAt:      &due,
	}
	require.NoError(t, st.CreateItem(ctx, item))
	require.NotEmpty(t, item.ID)

	got, err := st.GetItem(ctx, para.CollectionTasks, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pay rent", got.Title)
	assert.Equal(t, []string{"home", "monthly"}, got.Tags)
	require.Len(t, got.Related, 1)
	assert.Equal(t, "p1", got.Related[0].ID)
	require.NotNil(t, got.DueAt)
	assert.Equal(t, due.Unix(), got.DueAt.Unix())
}

func TestGetItemNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetItem(context.Background(), para.CollectionTasks, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestFindByTitleCaseInsensitive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateItem(ctx, &para.Item{
		Collection: para.CollectionProjects,
		Title:      "Website Redesign",
	}))

	got, err := st.FindByTitle(ctx, para.CollectionProjects, "website redesign")
	require.NoError(t, err)
	assert.Equal(t, "Website Redesign", got.Title)

	_, err = st.FindByTitle(ctx, para.CollectionProjects, "nope")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestListOpenTasksExcludesCompleted(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	open := &para.Item{Collection: para.CollectionTasks, Title: "open"}
	closed := &para.Item{Collection: para.CollectionTasks, Title: "closed"}
	require.NoError(t, st.CreateItem(ctx, open))
	require.NoError(t, st.CreateItem(ctx, closed))

	_, err := st.CompleteTask(ctx, closed.ID)
	require.NoError(t, err)

	tasks, err := st.ListOpenTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "open", tasks[0].Title)
}

func TestCompleteTaskIsIdempotentGuard(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	task := &para.Item{Collection: para.CollectionTasks, Title: "once"}
	require.NoError(t, st.CreateItem(ctx, task))

	done, err := st.CompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)

	_, err = st.CompleteTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestSearchContentPriorityOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateItem(ctx, &para.Item{
		Collection: para.CollectionTasks,
		Title:      "read later",
		Content:    "https://example.com/post",
	}))
	require.NoError(t, st.CreateItem(ctx, &para.Item{
		Collection: para.CollectionResources,
		Title:      "saved link",
		Content:    "https://example.com/post",
	}))

	ref, err := st.SearchContent(ctx,
		[]para.Collection{para.CollectionResources, para.CollectionTasks},
		"https://example.com/post")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, para.CollectionResources, ref.Collection)
	assert.Equal(t, "saved link", ref.Title)
}

func TestFindAccountSubstring(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAccount(ctx, &para.Account{Name: "กสิกรไทย", Kind: "bank"}))

	got, err := st.FindAccount(ctx, "กสิกร")
	require.NoError(t, err)
	assert.Equal(t, "กสิกรไทย", got.Name)

	_, err = st.FindAccount(ctx, "ไม่มีบัญชีนี้")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestModuleRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	m := &para.Module{
		ID:          "workout",
		Name:        "Workout Log",
		Description: "runs and lifts",
		Fields: []para.ModuleField{
			{Key: "distance_km", Type: "number"},
		},
	}
	require.NoError(t, st.UpsertModule(ctx, m))

	byID, err := st.GetModule(ctx, "workout")
	require.NoError(t, err)
	assert.Equal(t, "Workout Log", byID.Name)
	require.Len(t, byID.Fields, 1)
	assert.Equal(t, "number", byID.Fields[0].Type)

	byName, err := st.GetModule(ctx, "workout log")
	require.NoError(t, err)
	assert.Equal(t, "workout", byName.ID)

	_, err = st.GetModule(ctx, "missing")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertEmbedding(ctx, &para.Embedding{
		Collection: para.CollectionProjects,
		ItemID:     "p1",
		Title:      "Trip",
		Vector:     []float32{0.1, 0.2, 0.3},
	}))
	// Second upsert for the same item replaces, not duplicates.
	require.NoError(t, st.UpsertEmbedding(ctx, &para.Embedding{
		Collection: para.CollectionProjects,
		ItemID:     "p1",
		Title:      "Trip",
		Vector:     []float32{0.4, 0.5, 0.6},
	}))

	got, err := st.ListEmbeddings(ctx, []para.Collection{para.CollectionProjects})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.4, got[0].Vector[0], 0.0001)
}
