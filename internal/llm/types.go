package llm

import (
	"sort"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ContentTypeText = "text"
)

// JobStatus is the lifecycle state of one backend run. Statuses only move
// forward; polling stops at the first terminal status.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusExpired    JobStatus = "expired"
)

func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return true
	default:
		return false
	}
}

// Job is one unit of backend work producing an assistant reply.
type Job struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Assistant is a named, backend-managed model configuration. It is a
// read-only mirror; identity is the ID.
type Assistant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Message struct {
	Role      string        `json:"role"`
	Content   []ContentPart `json:"content,omitempty"`
	JobID     string        `json:"job_id,omitempty"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

func TextMessage(role string, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentPart{TextPart(text)},
	}
}

// Text concatenates the text parts of the message in order, with no
// separator. Non-text parts are skipped.
func (m Message) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, part := range m.Content {
		if part.Type == ContentTypeText {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "")
}

// SortChronological orders messages oldest-first. Backends disagree on
// listing order, so callers must normalize before concatenating replies.
func SortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// Profile is a locally defined assistant for backends that have no
// server-side assistant objects: a name plus the instructions and model it
// answers with.
type Profile struct {
	ID           string
	Name         string
	Model        string
	Instructions string
	MaxTokens    int
}
