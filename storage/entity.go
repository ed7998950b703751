package storage

import (
	"encoding/json"
	"time"

	"kanflow/domain"
)

const (
	edmDouble   = "Edm.Double"
	edmDateTime = "Edm.DateTime"
)

// taskEntity is the table row of a task. Partition = user, row = task id.
// Labels are stored as a JSON array because tables have no list type.
type taskEntity struct {
	PartitionKey  string     `json:"PartitionKey"`
	RowKey        string     `json:"RowKey"`
	Title         string     `json:"Title"`
	Description   string     `json:"Description,omitempty"`
	Status        string     `json:"Status"`
	Priority      string     `json:"Priority"`
	Assignee      string     `json:"Assignee,omitempty"`
	Labels        string     `json:"Labels,omitempty"`
	DueDate       *time.Time `json:"DueDate,omitempty"`
	DueDateType   string     `json:"DueDate@odata.type,omitempty"`
	Order         float64    `json:"Order"`
	OrderType     string     `json:"Order@odata.type,omitempty"`
	CreatedAt     time.Time  `json:"CreatedAt"`
	CreatedAtType string     `json:"CreatedAt@odata.type,omitempty"`
	UpdatedAt     time.Time  `json:"UpdatedAt"`
	UpdatedAtType string     `json:"UpdatedAt@odata.type,omitempty"`
}

func encodeTaskEntity(userID string, t domain.Task) ([]byte, error) {
	ent := taskEntity{
		PartitionKey:  userID,
		RowKey:        t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        string(t.Status),
		Priority:      string(t.Priority),
		Assignee:      t.Assignee,
		Order:         t.Order,
		OrderType:     edmDouble,
		CreatedAt:     t.CreatedAt.UTC(),
		CreatedAtType: edmDateTime,
		UpdatedAt:     t.UpdatedAt.UTC(),
		UpdatedAtType: edmDateTime,
	}
	if len(t.Labels) > 0 {
		raw, err := json.Marshal(t.Labels)
		if err != nil {
			return nil, err
		}
		ent.Labels = string(raw)
	}
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		ent.DueDate = &d
		ent.DueDateType = edmDateTime
	}
	return json.Marshal(ent)
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		Assignee:    ent.Assignee,
		DueDate:     ent.DueDate,
		Order:       ent.Order,
		CreatedAt:   ent.CreatedAt,
		UpdatedAt:   ent.UpdatedAt,
	}
	if !t.Status.Valid() {
		t.Status = domain.StatusTodo
	}
	if !t.Priority.Valid() {
		t.Priority = domain.PriorityMedium
	}
	if ent.Labels != "" {
		if err := json.Unmarshal([]byte(ent.Labels), &t.Labels); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}
