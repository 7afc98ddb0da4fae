package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/pnordin/assistant-chat/internal/chat"
	"github.com/pnordin/assistant-chat/internal/config"
	"github.com/pnordin/assistant-chat/internal/host"
	"github.com/pnordin/assistant-chat/internal/llm"
	"github.com/pnordin/assistant-chat/internal/store"
)

// CommandChange re-triggers assistant selection instead of asking a
// question.
const CommandChange = "change"

type Reply struct {
	Content string
	// Streamed is set when Content already went through the host's emit
	// sink, so callers don't render it twice.
	Streamed bool
}

// Session wires the orchestrator to its collaborators: settings, the
// durable store, and the interactive host. It rebuilds the backend and
// invalidates cached conversation handles whenever a backend-affecting
// setting changes.
type Session struct {
	cfg    *config.Manager
	store  *store.Store
	host   host.Host
	logger *slog.Logger

	mu        sync.Mutex
	backend   llm.Backend
	registry  *chat.ConversationRegistry
	orch      *chat.Orchestrator
	directory *chat.AssistantDirectory
}

func New(cfg *config.Manager, st *store.Store, h host.Host, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{cfg: cfg, store: st, host: h, logger: logger}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	cfg.Watch(func(config.Config) {
		s.onBackendChange()
	})
	return s, nil
}

func (s *Session) rebuild() error {
	c := s.cfg.Current()

	profiles, err := config.LoadProfiles(config.ProfilesDir(s.cfg.Dir()))
	if err != nil {
		return err
	}

	backend, err := llm.NewBackend(llm.Options{
		Provider:          llm.Provider(c.Provider),
		APIKey:            c.APIKey,
		AlternateAPIKey:   c.AlternateAPIKey,
		AlternateEndpoint: c.AlternateEndpoint,
		Profiles:          backendProfiles(profiles),
		Logger:            s.logger,
	})
	if err != nil {
		return err
	}

	registry := chat.NewConversationRegistry(backend, c.Fingerprint(), s.store, s.logger)
	orch := chat.NewOrchestrator(backend, registry, chat.OrchestratorConfig{}, s.logger)

	s.mu.Lock()
	s.backend = backend
	s.registry = registry
	s.orch = orch
	s.directory = chat.NewAssistantDirectory(backend)
	s.mu.Unlock()
	return nil
}

func (s *Session) onBackendChange() {
	s.mu.Lock()
	registry := s.registry
	s.mu.Unlock()
	if registry != nil {
		registry.InvalidateAll()
	}

	if err := s.rebuild(); err != nil {
		s.logger.Error("failed to rebuild backend after configuration change", "error", err)
		return
	}
	s.logger.Info("backend configuration changed; conversation handles invalidated")
}

// Handle is the single request/response surface. An empty question yields a
// user-visible message rather than an error; every orchestrator failure is
// translated to a short message and logged in full.
func (s *Session) Handle(ctx context.Context, question, command string) (*Reply, error) {
	if command == CommandChange {
		return s.changeAssistant(ctx)
	}

	if strings.TrimSpace(question) == "" {
		return &Reply{Content: "Please enter a question."}, nil
	}

	assistantID := s.cfg.Current().AssistantID
	if assistantID == "" {
		reply, err := s.changeAssistant(ctx)
		if err != nil {
			return nil, err
		}
		assistantID = s.cfg.Current().AssistantID
		if assistantID == "" {
			return reply, nil
		}
	}

	userID, err := s.store.UserID()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	orch := s.orch
	directory := s.directory
	s.mu.Unlock()

	// The selected assistant may have been deleted since it was persisted.
	// Resolving up front gives the same failure for both backend families.
	if _, err := directory.Resolve(ctx, assistantID); err != nil {
		s.logger.Error("failed to resolve selected assistant", "assistant_id", assistantID, "error", err)
		return s.replyForError(err), nil
	}

	answer, err := orch.Ask(ctx, assistantID, question, userID)
	if err != nil {
		s.logger.Error("exchange failed", "assistant_id", assistantID, "user_id", userID, "error", err)
		return s.replyForError(err), nil
	}

	s.host.Emit(answer.Content)
	return &Reply{Content: answer.Content, Streamed: true}, nil
}

// Assistants lists the assistants of the active backend.
func (s *Session) Assistants(ctx context.Context) ([]llm.Assistant, error) {
	s.mu.Lock()
	directory := s.directory
	s.mu.Unlock()
	return directory.List(ctx)
}

// changeAssistant lists assistants and asks the user to pick one. An
// authentication failure prompts once for a new API key and retries.
func (s *Session) changeAssistant(ctx context.Context) (*Reply, error) {
	assistants, err := s.Assistants(ctx)
	if llm.IsAuthentication(err) {
		if !s.promptForAPIKey() {
			return s.replyForError(err), nil
		}
		assistants, err = s.Assistants(ctx)
	}
	if err != nil {
		s.logger.Error("failed to list assistants", "error", err)
		return s.replyForError(err), nil
	}
	if len(assistants) == 0 {
		return &Reply{Content: "No assistants are available on the current backend."}, nil
	}

	choices := make([]host.Choice, 0, len(assistants))
	for _, a := range assistants {
		choices = append(choices, host.Choice{Label: a.Name, Value: a.ID})
	}

	id, ok := s.host.ChooseOne("Select an assistant", choices)
	if !ok {
		return &Reply{Content: "Assistant selection cancelled."}, nil
	}
	if err := s.cfg.SetAssistantID(id); err != nil {
		return nil, err
	}

	name := id
	for _, a := range assistants {
		if a.ID == id && a.Name != "" {
			name = a.Name
		}
	}
	return &Reply{Content: "Now using assistant " + name + "."}, nil
}

// promptForAPIKey asks for a replacement key for the active provider family
// and persists it. Saving triggers the config watch, which rebuilds the
// backend.
func (s *Session) promptForAPIKey() bool {
	c := s.cfg.Current()
	provider, err := llm.ResolveProvider(llm.Options{
		Provider:        llm.Provider(c.Provider),
		APIKey:          c.APIKey,
		AlternateAPIKey: c.AlternateAPIKey,
	})
	if err != nil {
		provider = llm.ProviderPrimary
	}

	key, ok := s.host.InputText("Enter your API key", true)
	if !ok || strings.TrimSpace(key) == "" {
		return false
	}
	if err := s.cfg.SetAPIKey(strings.TrimSpace(key), provider == llm.ProviderAlternate); err != nil {
		s.logger.Error("failed to save API key", "error", err)
		return false
	}
	// The file watcher may lag behind the write; rebuild right away so the
	// retry uses the new key.
	if err := s.rebuild(); err != nil {
		s.logger.Error("failed to rebuild backend with new API key", "error", err)
		return false
	}
	return true
}

// replyForError maps a typed failure to the short user-visible message for
// it. Raw backend errors never reach the user.
func (s *Session) replyForError(err error) *Reply {
	var runErr *llm.RunFailedError
	switch {
	case llm.IsInvalidInput(err):
		return &Reply{Content: err.Error() + "."}
	case errors.Is(err, context.Canceled):
		return &Reply{Content: "Request cancelled."}
	case llm.IsAuthentication(err):
		return &Reply{Content: "The backend rejected your API key.\n" +
			"1. Open the configuration file and check the api_key setting.\n" +
			"2. Generate a fresh key from your provider dashboard if needed.\n" +
			"3. Run the change command to verify the connection."}
	case errors.Is(err, llm.ErrAssistantNotFound):
		return &Reply{Content: "The selected assistant no longer exists. Run the change command to pick another one."}
	case errors.As(err, &runErr):
		return &Reply{Content: "The assistant run ended with status \"" + string(runErr.Status) + "\": " + runErr.Reason}
	case llm.IsMalformedResponse(err):
		return &Reply{Content: "Sorry, I could not read the assistant's reply. Please try again."}
	case llm.IsConfigError(err):
		return &Reply{Content: "The backend is not configured: " + err.Error() + "."}
	default:
		return &Reply{Content: "The assistant service could not be reached. Please check your connection and try again."}
	}
}

func backendProfiles(profiles []config.AssistantProfile) []llm.Profile {
	out := make([]llm.Profile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, llm.Profile{
			ID:           p.ID,
			Name:         p.Name,
			Model:        p.Model,
			Instructions: p.Instructions,
			MaxTokens:    p.MaxTokens,
		})
	}
	return out
}
