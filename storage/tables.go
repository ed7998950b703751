package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"kanflow/domain"
)

const maxUpdateAttempts = 3

type tableClient interface {
	NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	GetEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, o *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// Tables stores tasks in Azure Table Storage.
type Tables struct {
	tasks tableClient
	now   func() time.Time
}

// NewTables creates a Tables store from the given connection string.
func NewTables(connStr, tasksTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{tasks: svc.NewClient(tasksTable), now: time.Now}, nil
}

// ListTasks retrieves all tasks for the provided user.
func (s *Tables) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(userID, "'", "''") + "'"
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError("list tasks", err)
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, fmt.Errorf("decode task: %w", err)
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// GetTask returns a single task or domain.ErrNotFound.
func (s *Tables) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	t, _, err := s.get(ctx, userID, id)
	return t, err
}

func (s *Tables) get(ctx context.Context, userID, id string) (domain.Task, azcore.ETag, error) {
	resp, err := s.tasks.GetEntity(ctx, userID, id, nil)
	if err != nil {
		return domain.Task{}, "", mapTableError("get task "+id, err)
	}
	t, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return domain.Task{}, "", fmt.Errorf("decode task %s: %w", id, err)
	}
	return t, resp.ETag, nil
}

// CreateTask inserts t. An existing row with the same id is a conflict.
func (s *Tables) CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	payload, err := encodeTaskEntity(userID, t)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.tasks.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, mapTableError("create task", err)
	}
	return t, nil
}

// UpdateTask applies patch with an ETag guarded replace, re-reading the row
// when another writer got there first.
func (s *Tables) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	for attempt := 1; ; attempt++ {
		current, etag, err := s.get(ctx, userID, id)
		if err != nil {
			return domain.Task{}, err
		}
		next := patch.Apply(current, s.now())
		payload, err := encodeTaskEntity(userID, next)
		if err != nil {
			return domain.Task{}, err
		}
		_, err = s.tasks.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if err == nil {
			return next, nil
		}
		if !isPreconditionFailed(err) || attempt >= maxUpdateAttempts {
			return domain.Task{}, mapTableError("update task "+id, err)
		}
		log.WithFields(log.Fields{"task": id, "attempt": attempt}).Debug("storage.update.etag_conflict")
	}
}

// DeleteTask removes the task row.
func (s *Tables) DeleteTask(ctx context.Context, userID, id string) error {
	et := azcore.ETagAny
	_, err := s.tasks.DeleteEntity(ctx, userID, id, &aztables.DeleteEntityOptions{IfMatch: &et})
	return mapTableError("delete task "+id, err)
}
