package domain

import (
	"net/mail"
	"strings"
	"time"
)

// EventType names a change published after a successful write.
type EventType string

const (
	TaskCreated EventType = "task-created"
	TaskUpdated EventType = "task-updated"
	TaskDeleted EventType = "task-deleted"
)

// TaskEvent is the envelope placed on the events queue.
type TaskEvent struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId"`
	TaskID string    `json:"taskId"`
	Task   *Task     `json:"task,omitempty"`
	Time   time.Time `json:"time"`
}

// ContactMessage is a message submitted through the contact form.
type ContactMessage struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"receivedAt"`
}

const maxContactMessage = 5000

// Normalize trims the message and rejects incomplete input with ErrInvalidTask.
func (m ContactMessage) Normalize() (ContactMessage, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Message = strings.TrimSpace(m.Message)
	if m.Name == "" || m.Message == "" || len(m.Message) > maxContactMessage {
		return ContactMessage{}, ErrInvalidTask
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return ContactMessage{}, ErrInvalidTask
	}
	return m, nil
}
