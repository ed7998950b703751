package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanflow/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return azqueue.EnqueueMessagesResponse{}, f.err
	}
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func TestQueuePublishEnvelope(t *testing.T) {
	events, contact := &fakeQueue{}, &fakeQueue{}
	q := &Queue{events: events, contact: contact}
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	task := domain.Task{ID: "t1", Title: "A", Status: domain.StatusDone}

	if err := q.Publish(context.Background(), domain.TaskEvent{Type: domain.TaskUpdated, UserID: "u1", TaskID: "t1", Task: &task, Time: now}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(events.messages) != 1 || len(contact.messages) != 0 {
		t.Fatalf("expected one event message, got %d/%d", len(events.messages), len(contact.messages))
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(events.messages[0]), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["type"] != "task-updated" || got["userId"] != "u1" || got["taskId"] != "t1" {
		t.Fatalf("unexpected envelope: %v", got)
	}
}

func TestQueueEnqueueContact(t *testing.T) {
	events, contact := &fakeQueue{}, &fakeQueue{}
	q := &Queue{events: events, contact: contact}
	if err := q.EnqueueContact(context.Background(), domain.ContactMessage{Name: "A", Email: "a@b.c", Message: "hi"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(contact.messages) != 1 || len(events.messages) != 0 {
		t.Fatalf("contact message routed to the wrong queue")
	}
}

func TestQueuePropagatesErrors(t *testing.T) {
	boom := errors.New("enqueue failure")
	q := &Queue{events: &fakeQueue{err: boom}, contact: &fakeQueue{}}
	if err := q.Publish(context.Background(), domain.TaskEvent{Type: domain.TaskCreated}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
