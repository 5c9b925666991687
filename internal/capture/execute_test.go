package capture

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/store"
)

// fakeWriteStore is an in-memory WriteStore.
type fakeWriteStore struct {
	items        []*para.Item
	accounts     []para.Account
	transactions []*para.Transaction
	modules      map[string]*para.Module
	moduleItems  []*para.ModuleItem
	nextID       int
}

func newFakeWriteStore() *fakeWriteStore {
	return &fakeWriteStore{modules: make(map[string]*para.Module)}
}

func (f *fakeWriteStore) CreateItem(_ context.Context, item *para.Item) error {
	f.nextID++
	if item.ID == "" {
		item.ID = fmt.Sprintf("item-%d", f.nextID)
	}
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	f.items = append(f.items, item)
	return nil
}

func (f *fakeWriteStore) GetItem(_ context.Context, collection para.Collection, id string) (*para.Item, error) {
	for _, it := range f.items {
		if it.Collection == collection && it.ID == id {
			return it, nil
		}
	}
	return nil, store.ErrItemNotFound
}

func (f *fakeWriteStore) FindByTitle(_ context.Context, collection para.Collection, title string) (*para.Item, error) {
	for _, it := range f.items {
		if it.Collection == collection && strings.EqualFold(it.Title, title) {
			return it, nil
		}
	}
	return nil, store.ErrItemNotFound
}

func (f *fakeWriteStore) ListOpenTasks(_ context.Context, limit int) ([]para.Item, error) {
	var out []para.Item
	for _, it := range f.items {
		if it.Collection == para.CollectionTasks && !it.Completed {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeWriteStore) ListRecent(_ context.Context, collection para.Collection, limit int) ([]para.Item, error) {
	var out []para.Item
	for _, it := range f.items {
		if it.Collection == collection {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeWriteStore) CompleteTask(_ context.Context, id string) (*para.Item, error) {
	for _, it := range f.items {
		if it.Collection == para.CollectionTasks && it.ID == id && !it.Completed {
			now := time.Now().UTC()
			it.Completed = true
			it.CompletedAt = &now
			return it, nil
		}
	}
	return nil, store.ErrItemNotFound
}

func (f *fakeWriteStore) ListAccounts(_ context.Context) ([]para.Account, error) {
	return f.accounts, nil
}

func (f *fakeWriteStore) FindAccount(_ context.Context, name string) (*para.Account, error) {
	lower := strings.ToLower(name)
	for i := range f.accounts {
		an := strings.ToLower(f.accounts[i].Name)
		if an == lower || strings.Contains(an, lower) || strings.Contains(lower, an) {
			return &f.accounts[i], nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (f *fakeWriteStore) CreateTransaction(_ context.Context, t *para.Transaction) error {
	t.ID = "txn-1"
	t.CreatedAt = time.Now().UTC()
	f.transactions = append(f.transactions, t)
	return nil
}

func (f *fakeWriteStore) GetModule(_ context.Context, idOrName string) (*para.Module, error) {
	if m, ok := f.modules[idOrName]; ok {
		return m, nil
	}
	for _, m := range f.modules {
		if strings.EqualFold(m.Name, idOrName) {
			return m, nil
		}
	}
	return nil, store.ErrModuleNotFound
}

func (f *fakeWriteStore) CreateModuleItem(_ context.Context, item *para.ModuleItem) error {
	item.ID = "mi-1"
	item.CreatedAt = time.Now().UTC()
	f.moduleItems = append(f.moduleItems, item)
	return nil
}

func (f *fakeWriteStore) find(collection para.Collection, title string) *para.Item {
	for _, it := range f.items {
		if it.Collection == collection && it.Title == title {
			return it
		}
	}
	return nil
}

func bkk(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	return loc
}

func TestCreateTaskLinksNamedProject(t *testing.T) {
	fs := newFakeWriteStore()
	fs.items = append(fs.items, &para.Item{ID: "p1", Collection: para.CollectionProjects, Title: "Website Redesign"})
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "task"}, &ClassifierOutput{
		Operation:      OpCreate,
		TargetType:     "task",
		Title:          "Draft the homepage",
		RelatedProject: "Website Redesign",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)

	task := fs.find(para.CollectionTasks, "Draft the homepage")
	require.NotNil(t, task)
	require.Len(t, task.Related, 1)
	assert.Equal(t, para.CollectionProjects, task.Related[0].Collection)
	assert.Equal(t, "p1", task.Related[0].ID)
}

func TestCreateTaskMissingProjectPendsWithoutAuthorization(t *testing.T) {
	fs := newFakeWriteStore()
	ex := NewExecutor(fs, bkk(t), false)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "task"}, &ClassifierOutput{
		Operation:      OpCreate,
		TargetType:     "task",
		Title:          "Draft the homepage",
		RelatedProject: "Website Redesign",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusPending, res.Status)
	assert.Equal(t, ReasonProjectNotFound, res.ReasonCode)
	assert.Contains(t, res.Reply, "Website Redesign")
	assert.Nil(t, fs.find(para.CollectionTasks, "Draft the homepage"))
}

func TestCreateTaskAutoCreatesProjectWithArea(t *testing.T) {
	fs := newFakeWriteStore()
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "task"}, &ClassifierOutput{
		Operation:      OpCreate,
		TargetType:     "task",
		Title:          "Book flights",
		RelatedProject: "Trip: Osaka",
		RelatedArea:    "Travel",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)

	project := fs.find(para.CollectionProjects, "Trip: Osaka")
	require.NotNil(t, project)
	require.Len(t, project.Related, 1)
	area := fs.find(para.CollectionAreas, "Travel")
	require.NotNil(t, area)
	assert.Equal(t, area.ID, project.Related[0].ID)
	assert.Equal(t, "Travel", area.Name)

	task := fs.find(para.CollectionTasks, "Book flights")
	require.NotNil(t, task)
	require.Len(t, task.Related, 1)
	assert.Equal(t, project.ID, task.Related[0].ID)

	// extras carry the auto-created parents too
	kinds := make(map[string]int)
	for _, c := range res.Created {
		kinds[c.Kind]++
	}
	assert.Equal(t, 1, kinds["task"])
	assert.Equal(t, 1, kinds["project"])
	assert.Equal(t, 1, kinds["area"])
}

func TestCreateTaskFallsBackToAreaLink(t *testing.T) {
	fs := newFakeWriteStore()
	ex := NewExecutor(fs, bkk(t), true)

	_, err := ex.Execute(context.Background(), &CaptureRequest{Message: "task"}, &ClassifierOutput{
		Operation:   OpCreate,
		TargetType:  "task",
		Title:       "Morning run",
		RelatedArea: "Health",
	}, false)
	require.NoError(t, err)

	task := fs.find(para.CollectionTasks, "Morning run")
	require.NotNil(t, task)
	require.Len(t, task.Related, 1)
	assert.Equal(t, para.CollectionAreas, task.Related[0].Collection)
}

func TestCreateTaskDefaultDue(t *testing.T) {
	fs := newFakeWriteStore()
	loc := bkk(t)
	ex := NewExecutor(fs, loc, true)

	_, err := ex.Execute(context.Background(), &CaptureRequest{Message: "task"}, &ClassifierOutput{
		Operation:  OpCreate,
		TargetType: "task",
		Title:      "Pay rent",
	}, false)
	require.NoError(t, err)

	task := fs.find(para.CollectionTasks, "Pay rent")
	require.NotNil(t, task)
	require.NotNil(t, task.DueAt)

	want := time.Now().In(loc).AddDate(0, 0, 7)
	assert.Equal(t, want.Day(), task.DueAt.Day())
	assert.Equal(t, 9, task.DueAt.Hour())
}

func TestCreateTaskExplicitDue(t *testing.T) {
	fs := newFakeWriteStore()
	ex := NewExecutor(fs, bkk(t), true)

	_, err := ex.Execute(context.Background(), &CaptureRequest{Message: "task"}, &ClassifierOutput{
		Operation:  OpCreate,
		TargetType: "task",
		Title:      "File taxes",
		DueDate:    "2026-03-31T12:00:00+07:00",
	}, false)
	require.NoError(t, err)

	task := fs.find(para.CollectionTasks, "File taxes")
	require.NotNil(t, task)
	require.NotNil(t, task.DueAt)
	assert.Equal(t, 2026, task.DueAt.Year())
	assert.Equal(t, time.March, task.DueAt.Month())
}

func TestCreateProjectWithoutAreaStillCreates(t *testing.T) {
	fs := newFakeWriteStore()
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "p"}, &ClassifierOutput{
		Operation:  OpCreate,
		TargetType: "project",
		Title:      "Side hustle",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)

	project := fs.find(para.CollectionProjects, "Side hustle")
	require.NotNil(t, project)
	assert.Empty(t, project.Related)
}

func TestTransactionShorthandAmount(t *testing.T) {
	fs := newFakeWriteStore()
	fs.accounts = []para.Account{{ID: "a1", Name: "กสิกร"}}
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "โอน 3k ไป กสิกร"}, &ClassifierOutput{
		Operation:       OpTransaction,
		Amount:          "3k",
		TransactionKind: "transfer",
		AccountName:     "กสิกร",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)

	require.Len(t, fs.transactions, 1)
	assert.InDelta(t, 3000, fs.transactions[0].Amount, 0.001)
	assert.Equal(t, "a1", fs.transactions[0].AccountID)
	assert.Equal(t, "transfer", fs.transactions[0].Kind)
}

func TestTransactionSingleAccountDefault(t *testing.T) {
	fs := newFakeWriteStore()
	fs.accounts = []para.Account{{ID: "a1", Name: "Cash"}}
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "coffee 120"}, &ClassifierOutput{
		Operation: OpTransaction,
		Amount:    "120",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)
	require.Len(t, fs.transactions, 1)
	assert.Equal(t, "expense", fs.transactions[0].Kind)
}

func TestTransactionAccountNotFound(t *testing.T) {
	fs := newFakeWriteStore()
	fs.accounts = []para.Account{{ID: "a1", Name: "Cash"}, {ID: "a2", Name: "Bank"}}
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "coffee 120"}, &ClassifierOutput{
		Operation: OpTransaction,
		Amount:    "120",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusFailed, res.Status)
	assert.Equal(t, ReasonAccountNotFound, res.ReasonCode)
	assert.Empty(t, fs.transactions)
}

func TestModuleItemCoercion(t *testing.T) {
	fs := newFakeWriteStore()
	fs.modules["workout"] = &para.Module{
		ID:   "workout",
		Name: "Workout Log",
		Fields: []para.ModuleField{
			{Key: "distance_km", Type: "number"},
			{Key: "notes", Type: "text"},
		},
	}
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "run"}, &ClassifierOutput{
		Operation:    OpModuleItem,
		ModuleTarget: "workout",
		ModuleData: map[string]interface{}{
			"distance_km": "5.2",
			"notes":       "easy pace",
		},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)

	require.Len(t, fs.moduleItems, 1)
	assert.InDelta(t, 5.2, fs.moduleItems[0].Data["distance_km"].(float64), 0.001)
	assert.Equal(t, "easy pace", fs.moduleItems[0].Data["notes"])
}

func TestModuleItemMissingTarget(t *testing.T) {
	fs := newFakeWriteStore()
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "x"}, &ClassifierOutput{
		Operation: OpModuleItem,
	}, false)
	require.NoError(t, err)
	assert.Equal(t, para.StatusFailed, res.Status)
	assert.Equal(t, ReasonModuleTargetMissing, res.ReasonCode)
}

func TestCompleteFuzzyMatch(t *testing.T) {
	fs := newFakeWriteStore()
	fs.items = append(fs.items, &para.Item{ID: "t1", Collection: para.CollectionTasks, Title: "Pay the rent"})
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "done: rent"}, &ClassifierOutput{
		Operation: OpComplete,
		Title:     "rent",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)
	assert.True(t, fs.items[0].Completed)
}

func TestCompleteNoMatchIsFriendlyChat(t *testing.T) {
	fs := newFakeWriteStore()
	ex := NewExecutor(fs, bkk(t), true)

	res, err := ex.Execute(context.Background(), &CaptureRequest{Message: "done: nothing"}, &ClassifierOutput{
		Operation: OpComplete,
		Title:     "nothing",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, para.StatusSuccess, res.Status)
	assert.Contains(t, res.Reply, "couldn't find")
	assert.Empty(t, res.Created)
}
