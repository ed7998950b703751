package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanflow/domain"
)

type fakeTable struct {
	rows        map[string][]byte
	etags       map[string]azcore.ETag
	pages       [][][]byte
	conflicts   int
	updates     int
	lastIfMatch azcore.ETag
	version     int
	err         error
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string][]byte{}, etags: map[string]azcore.ETag{}}
}

func (f *fakeTable) NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	page := 0
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return page < len(f.pages) },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			if f.err != nil {
				return aztables.ListEntitiesResponse{}, f.err
			}
			resp := aztables.ListEntitiesResponse{Entities: f.pages[page]}
			page++
			return resp, nil
		},
	})
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	data, ok := f.rows[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	return aztables.GetEntityResponse{Value: data, ETag: f.etags[pk+"/"+rk]}, nil
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	t, err := decodeTaskEntity(entity)
	if err != nil {
		return aztables.AddEntityResponse{}, err
	}
	key := "u1/" + t.ID
	if _, ok := f.rows[key]; ok {
		return aztables.AddEntityResponse{}, &azcore.ResponseError{StatusCode: 409}
	}
	f.rows[key] = entity
	f.etags[key] = "v0"
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	f.updates++
	f.lastIfMatch = *o.IfMatch
	t, err := decodeTaskEntity(entity)
	if err != nil {
		return aztables.UpdateEntityResponse{}, err
	}
	key := "u1/" + t.ID
	if f.conflicts > 0 {
		f.conflicts--
		f.version++
		f.etags[key] = azcore.ETag("v" + string(rune('0'+f.version)))
		return aztables.UpdateEntityResponse{}, &azcore.ResponseError{StatusCode: 412}
	}
	f.rows[key] = entity
	return aztables.UpdateEntityResponse{}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, pk, rk string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	if _, ok := f.rows[pk+"/"+rk]; !ok {
		return aztables.DeleteEntityResponse{}, &azcore.ResponseError{StatusCode: 404}
	}
	delete(f.rows, pk+"/"+rk)
	return aztables.DeleteEntityResponse{}, nil
}

func seedTask(t *testing.T, f *fakeTable, task domain.Task) {
	t.Helper()
	payload, err := encodeTaskEntity("u1", task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.rows["u1/"+task.ID] = payload
	f.etags["u1/"+task.ID] = "v0"
}

func TestTaskEntityRoundTripsFields(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in := domain.Task{
		ID: "t1", Title: "Ship", Status: domain.StatusReview, Priority: domain.PriorityHigh,
		Labels: []string{"api", "ui"}, DueDate: &due, Order: 1.5,
		CreatedAt: due.Add(-time.Hour), UpdatedAt: due,
	}
	payload, err := encodeTaskEntity("u1", in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeTaskEntity(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != "t1" || out.Status != domain.StatusReview || out.Order != 1.5 || len(out.Labels) != 2 || !out.DueDate.Equal(due) {
		t.Fatalf("unexpected task: %+v", out)
	}
}

func TestDecodeTaskEntityDefaults(t *testing.T) {
	data := []byte(`{"PartitionKey":"u1","RowKey":"t9","Title":"Old","Status":"backlog","Order":2}`)
	task, err := decodeTaskEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Status != domain.StatusTodo || task.Priority != domain.PriorityMedium || task.Order != 2 {
		t.Fatalf("unexpected defaults: %+v", task)
	}
}

func TestTablesListTasksAcrossPages(t *testing.T) {
	f := newFakeTable()
	p1, _ := encodeTaskEntity("u1", domain.Task{ID: "a", Title: "A", Status: domain.StatusTodo})
	p2, _ := encodeTaskEntity("u1", domain.Task{ID: "b", Title: "B", Status: domain.StatusDone})
	f.pages = [][][]byte{{p1}, {p2}}
	store := &Tables{tasks: f, now: time.Now}

	tasks, err := store.ListTasks(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "a" || tasks[1].ID != "b" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestTablesListTasksMapsForbidden(t *testing.T) {
	f := newFakeTable()
	f.pages = [][][]byte{{}}
	f.err = &azcore.ResponseError{StatusCode: 403}
	store := &Tables{tasks: f, now: time.Now}
	if _, err := store.ListTasks(context.Background(), "u1"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestTablesUpdateRetriesOnETagConflict(t *testing.T) {
	f := newFakeTable()
	seedTask(t, f, domain.Task{ID: "t1", Title: "A", Status: domain.StatusTodo, Priority: domain.PriorityLow})
	f.conflicts = 1
	store := &Tables{tasks: f, now: time.Now}

	got, err := store.UpdateTask(context.Background(), "u1", "t1", domain.StatusPatch(domain.StatusDone, 3))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != domain.StatusDone || got.Order != 3 {
		t.Fatalf("unexpected task: %+v", got)
	}
	if f.updates != 2 {
		t.Fatalf("expected a retry, got %d updates", f.updates)
	}
	if f.lastIfMatch != "v1" {
		t.Fatalf("retry should use the fresh etag, got %q", f.lastIfMatch)
	}
}

func TestTablesUpdateGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFakeTable()
	seedTask(t, f, domain.Task{ID: "t1", Title: "A", Status: domain.StatusTodo})
	f.conflicts = maxUpdateAttempts
	store := &Tables{tasks: f, now: time.Now}

	_, err := store.UpdateTask(context.Background(), "u1", "t1", domain.StatusPatch(domain.StatusDone, 1))
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
	if f.updates != maxUpdateAttempts {
		t.Fatalf("expected %d attempts, got %d", maxUpdateAttempts, f.updates)
	}
}

func TestTablesMissingTask(t *testing.T) {
	store := &Tables{tasks: newFakeTable(), now: time.Now}
	ctx := context.Background()
	if _, err := store.GetTask(ctx, "u1", "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if _, err := store.UpdateTask(ctx, "u1", "nope", domain.StatusPatch(domain.StatusDone, 0)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	if err := store.DeleteTask(ctx, "u1", "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
}

func TestTablesCreateDuplicate(t *testing.T) {
	store := &Tables{tasks: newFakeTable(), now: time.Now}
	task := domain.Task{ID: "t1", Title: "A", Status: domain.StatusTodo}
	if _, err := store.CreateTask(context.Background(), "u1", task); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateTask(context.Background(), "u1", task); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMapTableErrorTimeout(t *testing.T) {
	if err := mapTableError("op", context.DeadlineExceeded); !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if mapTableError("op", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}
