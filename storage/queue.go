package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanflow/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Queue publishes task events and contact messages to Azure queues.
type Queue struct {
	events  queueClient
	contact queueClient
}

// NewQueue creates queue clients for the events and contact queues.
func NewQueue(connStr, eventsQueue, contactQueue string) (*Queue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &opts)
	if err != nil {
		return nil, err
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, contactQueue, &opts)
	if err != nil {
		return nil, err
	}
	return &Queue{events: eq, contact: cq}, nil
}

// Publish sends ev to the events queue.
func (q *Queue) Publish(ctx context.Context, ev domain.TaskEvent) error {
	return enqueueJSON(ctx, q.events, "publish "+string(ev.Type), ev)
}

// EnqueueContact hands a contact-form message to the mail queue.
func (q *Queue) EnqueueContact(ctx context.Context, msg domain.ContactMessage) error {
	return enqueueJSON(ctx, q.contact, "enqueue contact", msg)
}

func enqueueJSON(ctx context.Context, qc queueClient, op string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := qc.EnqueueMessage(ctx, string(data), nil); err != nil {
		return mapTableError(op, err)
	}
	return nil
}
