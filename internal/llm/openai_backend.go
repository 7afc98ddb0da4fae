package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	assistantPageSize = 20
	messagePageSize   = 100
)

// openAIBackend is the job-based variant: the backend natively exposes
// threads, runs and messages as asynchronous objects.
type openAIBackend struct {
	api    assistantsAPI
	logger *slog.Logger
}

// assistantsAPI is the slice of the go-openai client this backend uses.
// *openai.Client satisfies it; tests substitute a fake.
type assistantsAPI interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	ListAssistants(ctx context.Context, limit *int, order *string, after *string, before *string) (openai.AssistantsList, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
}

func newOpenAIBackend(opts Options) *openAIBackend {
	cfg := openai.DefaultConfig(opts.APIKey)
	return &openAIBackend{
		api:    openai.NewClientWithConfig(cfg),
		logger: opts.Logger,
	}
}

func (b *openAIBackend) CreateConversation(ctx context.Context) (string, error) {
	thread, err := b.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", classifyOpenAIError("create-conversation", err)
	}
	b.logger.Debug("created thread", "thread_id", thread.ID)
	return thread.ID, nil
}

func (b *openAIBackend) AppendMessage(ctx context.Context, conversationID, role, text string) error {
	_, err := b.api.CreateMessage(ctx, conversationID, openai.MessageRequest{
		Role:    role,
		Content: text,
	})
	if err != nil {
		return classifyOpenAIError("append-message", err)
	}
	return nil
}

func (b *openAIBackend) StartJob(ctx context.Context, conversationID, assistantID string) (*Job, error) {
	run, err := b.api.CreateRun(ctx, conversationID, openai.RunRequest{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, classifyOpenAIError("start-job", err)
	}
	return jobFromRun(run), nil
}

func (b *openAIBackend) PollJob(ctx context.Context, conversationID, jobID string) (*Job, error) {
	run, err := b.api.RetrieveRun(ctx, conversationID, jobID)
	if err != nil {
		return nil, classifyOpenAIError("poll-job", err)
	}
	return jobFromRun(run), nil
}

func (b *openAIBackend) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	limit := messagePageSize
	order := "asc"
	list, err := b.api.ListMessage(ctx, conversationID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, classifyOpenAIError("list-messages", err)
	}

	msgs := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		msgs = append(msgs, messageFromThreadMessage(m))
	}
	return msgs, nil
}

func (b *openAIBackend) ListAssistants(ctx context.Context) ([]Assistant, error) {
	limit := assistantPageSize
	order := "desc"
	list, err := b.api.ListAssistants(ctx, &limit, &order, nil, nil)
	if err != nil {
		return nil, classifyOpenAIError("list-assistants", err)
	}

	assistants := make([]Assistant, 0, len(list.Assistants))
	for _, a := range list.Assistants {
		assistants = append(assistants, assistantFromOpenAI(a))
	}
	return assistants, nil
}

func (b *openAIBackend) RetrieveAssistant(ctx context.Context, id string) (*Assistant, error) {
	a, err := b.api.RetrieveAssistant(ctx, id)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 404 {
			return nil, ErrAssistantNotFound
		}
		return nil, classifyOpenAIError("retrieve-assistant", err)
	}
	assistant := assistantFromOpenAI(a)
	return &assistant, nil
}

func jobFromRun(run openai.Run) *Job {
	job := &Job{ID: run.ID, Status: jobStatusFromRun(run.Status)}
	if run.LastError != nil {
		job.ErrorMessage = run.LastError.Message
	}
	return job
}

func jobStatusFromRun(status openai.RunStatus) JobStatus {
	switch status {
	case openai.RunStatusQueued:
		return JobStatusQueued
	case openai.RunStatusInProgress, openai.RunStatusRequiresAction, openai.RunStatusCancelling:
		return JobStatusInProgress
	case openai.RunStatusCompleted:
		return JobStatusCompleted
	case openai.RunStatusCancelled:
		return JobStatusCancelled
	case openai.RunStatusExpired:
		return JobStatusExpired
	default:
		return JobStatusFailed
	}
}

func messageFromThreadMessage(m openai.Message) Message {
	msg := Message{
		Role:      m.Role,
		CreatedAt: time.Unix(int64(m.CreatedAt), 0),
	}
	if m.RunID != nil {
		msg.JobID = *m.RunID
	}
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			msg.Content = append(msg.Content, TextPart(c.Text.Value))
			continue
		}
		msg.Content = append(msg.Content, ContentPart{Type: c.Type})
	}
	return msg
}

func assistantFromOpenAI(a openai.Assistant) Assistant {
	assistant := Assistant{ID: a.ID}
	if a.Name != nil {
		assistant.Name = *a.Name
	}
	return assistant
}

// classifyOpenAIError translates a transport error once, at the adapter
// boundary. Typed status codes win; text sniffing is the fallback.
func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 {
			return &AuthenticationError{Err: err}
		}
	}
	if looksLikeAuthError(err) {
		return &AuthenticationError{Err: err}
	}
	return &BackendUnavailableError{Op: op, Err: err}
}
