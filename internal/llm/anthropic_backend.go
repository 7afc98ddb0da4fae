package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

const anthropicDefaultMaxTokens int64 = 4096

// anthropicBackend is the direct-call variant: the backend has no
// conversation or job objects, so conversations are synthetic ids over a
// local transcript and StartJob is one synchronous round trip that returns
// an already terminal job. Assistants come from local profiles.
type anthropicBackend struct {
	api      anthropicMessagesAPI
	profiles []Profile
	logger   *slog.Logger

	mu            sync.Mutex
	conversations map[string]*directConversation
}

// anthropicMessagesAPI is the slice of the SDK this backend uses.
// anthropic.Client.Messages satisfies it; tests substitute a fake.
type anthropicMessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type directConversation struct {
	transcript []Message
	jobs       map[string]*Job
}

func newAnthropicBackend(opts Options) *anthropicBackend {
	clientOpts := []option.RequestOption{option.WithAPIKey(opts.AlternateAPIKey)}
	if opts.AlternateEndpoint != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.AlternateEndpoint))
	}
	client := anthropic.NewClient(clientOpts...)

	return &anthropicBackend{
		api:           &client.Messages,
		profiles:      opts.Profiles,
		logger:        opts.Logger,
		conversations: make(map[string]*directConversation),
	}
}

func (b *anthropicBackend) CreateConversation(_ context.Context) (string, error) {
	id := "conv_" + uuid.NewString()
	b.mu.Lock()
	b.conversations[id] = newDirectConversation()
	b.mu.Unlock()
	return id, nil
}

func (b *anthropicBackend) AppendMessage(_ context.Context, conversationID, role, text string) error {
	conv := b.conversation(conversationID)
	b.mu.Lock()
	msg := TextMessage(role, text)
	msg.CreatedAt = time.Now()
	conv.transcript = append(conv.transcript, msg)
	b.mu.Unlock()
	return nil
}

func (b *anthropicBackend) StartJob(ctx context.Context, conversationID, assistantID string) (*Job, error) {
	profile := b.profileByID(assistantID)
	if profile == nil {
		return nil, ErrAssistantNotFound
	}
	conv := b.conversation(conversationID)

	b.mu.Lock()
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(profile.Model),
		MaxTokens: profileMaxTokens(profile),
		Messages:  anthropicMessagesFromTranscript(conv.transcript),
	}
	b.mu.Unlock()
	if profile.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: profile.Instructions}}
	}

	message, err := b.api.New(ctx, params)
	if err != nil {
		classified := classifyAnthropicError("start-job", err)
		if failed := failedJobFromError(err); failed != nil && !IsAuthentication(classified) {
			b.recordJob(conv, failed)
			return failed, nil
		}
		return nil, classified
	}

	reply := Message{
		Role:      RoleAssistant,
		JobID:     message.ID,
		CreatedAt: time.Now(),
	}
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Content = append(reply.Content, TextPart(variant.Text))
		}
	}

	job := &Job{ID: message.ID, Status: JobStatusCompleted}
	b.mu.Lock()
	conv.transcript = append(conv.transcript, reply)
	b.mu.Unlock()
	b.recordJob(conv, job)
	return job, nil
}

func (b *anthropicBackend) PollJob(_ context.Context, conversationID, jobID string) (*Job, error) {
	conv := b.conversation(conversationID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if job, ok := conv.jobs[jobID]; ok {
		return job, nil
	}
	// Jobs are terminal the moment they are created, so an unknown id can
	// only mean the process restarted between start and poll.
	return &Job{ID: jobID, Status: JobStatusExpired, ErrorMessage: "job no longer tracked"}, nil
}

func (b *anthropicBackend) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	conv := b.conversation(conversationID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), conv.transcript...), nil
}

func (b *anthropicBackend) ListAssistants(_ context.Context) ([]Assistant, error) {
	assistants := make([]Assistant, 0, len(b.profiles))
	for _, p := range b.profiles {
		if len(assistants) == assistantPageSize {
			break
		}
		assistants = append(assistants, Assistant{ID: p.ID, Name: p.Name})
	}
	return assistants, nil
}

// RetrieveAssistant scans the profile list; there is no direct lookup for
// this family.
func (b *anthropicBackend) RetrieveAssistant(_ context.Context, id string) (*Assistant, error) {
	if p := b.profileByID(id); p != nil {
		return &Assistant{ID: p.ID, Name: p.Name}, nil
	}
	return nil, ErrAssistantNotFound
}

// conversation returns the tracked conversation, creating the entry if the
// id is unknown. Handles persisted by a previous process resolve to a fresh
// transcript rather than an error.
func (b *anthropicBackend) conversation(id string) *directConversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	conv, ok := b.conversations[id]
	if !ok {
		conv = newDirectConversation()
		b.conversations[id] = conv
	}
	return conv
}

func (b *anthropicBackend) recordJob(conv *directConversation, job *Job) {
	b.mu.Lock()
	conv.jobs[job.ID] = job
	b.mu.Unlock()
}

func (b *anthropicBackend) profileByID(id string) *Profile {
	for i := range b.profiles {
		if b.profiles[i].ID == id {
			return &b.profiles[i]
		}
	}
	return nil
}

func newDirectConversation() *directConversation {
	return &directConversation{jobs: make(map[string]*Job)}
}

func profileMaxTokens(p *Profile) int64 {
	if p.MaxTokens > 0 {
		return int64(p.MaxTokens)
	}
	return anthropicDefaultMaxTokens
}

func anthropicMessagesFromTranscript(transcript []Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(transcript))
	for _, msg := range transcript {
		text := msg.Text()
		switch msg.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		case RoleAssistant:
			if text == "" {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		}
	}
	return messages
}

// failedJobFromError maps an API-level rejection to a terminal failed job,
// mirroring how the job-based family reports run failures. Transport
// errors return nil and surface as BackendUnavailable instead.
func failedJobFromError(err error) *Job {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return nil
	}
	msg := fmt.Sprintf("request rejected with status %d", apiErr.StatusCode)
	if apiErr.RequestID != "" {
		msg += " (request_id: " + apiErr.RequestID + ")"
	}
	if raw := strings.TrimSpace(apiErr.RawJSON()); raw != "" {
		msg += ": " + raw
	}
	return &Job{
		ID:           "job_" + uuid.NewString(),
		Status:       JobStatusFailed,
		ErrorMessage: msg,
	}
}

func classifyAnthropicError(op string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return &AuthenticationError{Err: err}
		}
	}
	if looksLikeAuthError(err) {
		return &AuthenticationError{Err: err}
	}
	return &BackendUnavailableError{Op: op, Err: err}
}
