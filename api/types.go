package api

import (
	"context"

	"kanflow/domain"
	"kanflow/integrations"
)

const maxBodySize = 64 * 1024 // 64 KiB

// TaskService is the task use-case layer behind the handlers.
type TaskService interface {
	List(ctx context.Context, userID string) ([]domain.Task, error)
	Create(ctx context.Context, userID string, in domain.NewTask) (domain.Task, error)
	Update(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, userID, id string) error
	Move(ctx context.Context, userID, taskID string, target domain.Target) (domain.Task, bool, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// ContactQueue accepts contact-form messages for delivery.
type ContactQueue interface {
	EnqueueContact(ctx context.Context, msg domain.ContactMessage) error
}

// IntegrationStatus reports the state of connected integrations.
type IntegrationStatus interface {
	Status() []integrations.ProviderStatus
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type moveRequest struct {
	TaskID string `json:"taskId"`
	Target struct {
		Kind   string `json:"kind"`
		ID     string `json:"id,omitempty"`
		Status string `json:"status,omitempty"`
	} `json:"target"`
}

type integrationsResponse struct {
	Integrations []integrations.ProviderStatus `json:"integrations"`
}
