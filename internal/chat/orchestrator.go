package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pnordin/assistant-chat/internal/llm"
)

const defaultPollInterval = 900 * time.Millisecond

// ErrPollBudgetExhausted is returned when MaxPolls is configured and the job
// never reached a terminal status within it.
var ErrPollBudgetExhausted = errors.New("job did not reach a terminal status within the poll budget")

// OrchestratorConfig tunes the poll loop. The zero value polls every 900ms
// and waits indefinitely, matching the base design; MaxPolls is the opt-in
// ceiling for deployments that want one.
type OrchestratorConfig struct {
	PollInterval time.Duration
	MaxPolls     int
}

// Orchestrator owns one question/answer exchange: it resolves the user's
// conversation, appends the question, starts a job, polls it to a terminal
// status and extracts the reply text.
type Orchestrator struct {
	backend      llm.Backend
	registry     *ConversationRegistry
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

type Answer struct {
	Content string
}

func NewOrchestrator(backend llm.Backend, registry *ConversationRegistry, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		backend:      backend,
		registry:     registry,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		logger:       logger,
	}
}

// Ask submits question to assistantID on behalf of userID and blocks until
// the exchange ends. Failures come back as the typed errors in the llm
// package; Ask never retries on its own. Cancelling ctx between polls
// returns ctx.Err() and leaves the backend job running remotely.
func (o *Orchestrator) Ask(ctx context.Context, assistantID, question, userID string) (*Answer, error) {
	if strings.TrimSpace(assistantID) == "" {
		return nil, llm.NewInvalidInputError("no assistant selected")
	}
	if strings.TrimSpace(question) == "" {
		return nil, llm.NewInvalidInputError("question is empty")
	}

	handle, err := o.registry.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	// At-least-once append: if anything after this fails, the user message
	// stays in the conversation log.
	if err := o.backend.AppendMessage(ctx, handle.ConversationID, llm.RoleUser, question); err != nil {
		return nil, err
	}

	job, err := o.backend.StartJob(ctx, handle.ConversationID, assistantID)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("run started",
		"job_id", job.ID,
		"conversation_id", handle.ConversationID,
		"assistant_id", assistantID,
		"question_tokens", estimateTokens(question),
	)

	job, err = o.waitForJob(ctx, handle.ConversationID, job)
	if err != nil {
		return nil, err
	}

	if job.Status != llm.JobStatusCompleted {
		reason := job.ErrorMessage
		if reason == "" {
			reason = "Unknown reason"
		}
		return nil, &llm.RunFailedError{Status: job.Status, Reason: reason}
	}

	return o.extractAnswer(ctx, handle.ConversationID, job.ID)
}

// waitForJob polls at a fixed interval until the job is terminal.
// Cancellation is observed before each sleep and again before each poll
// request; no best-effort remote cancel is attempted.
func (o *Orchestrator) waitForJob(ctx context.Context, conversationID string, job *llm.Job) (*llm.Job, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	polls := 0
	for !job.Status.Terminal() {
		if o.maxPolls > 0 && polls >= o.maxPolls {
			return nil, ErrPollBudgetExhausted
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := o.backend.PollJob(ctx, conversationID, job.ID)
		if err != nil {
			return nil, err
		}
		polls++
		job = next
	}
	return job, nil
}

// extractAnswer concatenates the text parts of the assistant messages that
// belong to jobID, in chronological order with no separator.
func (o *Orchestrator) extractAnswer(ctx context.Context, conversationID, jobID string) (*Answer, error) {
	msgs, err := o.backend.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// Some backends list newest-first; swapped concatenation order is a
	// correctness bug, so normalize unconditionally.
	llm.SortChronological(msgs)

	var sb strings.Builder
	found := false
	for _, msg := range msgs {
		if msg.Role != llm.RoleAssistant || msg.JobID != jobID {
			continue
		}
		found = true
		sb.WriteString(msg.Text())
	}

	if !found {
		o.logger.Error("completed run has no assistant message",
			"job_id", jobID, "conversation_id", conversationID, "messages", len(msgs))
		return nil, llm.NewMalformedResponseError("no assistant message found for job %s", jobID)
	}
	if sb.Len() == 0 {
		o.logger.Error("assistant message has no text content",
			"job_id", jobID, "conversation_id", conversationID, "messages", len(msgs))
		return nil, llm.NewMalformedResponseError("assistant message for job %s contains no text", jobID)
	}
	return &Answer{Content: sb.String()}, nil
}

// estimateTokens is the rough length/4 heuristic; it feeds debug logs only.
func estimateTokens(s string) int {
	return len(s) / 4
}
