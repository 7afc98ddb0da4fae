package llm

import (
	"context"
	"log/slog"
)

// Backend is the adapter the orchestrator drives. The job-based variant maps
// each operation to a native backend call; the direct-call variant collapses
// StartJob and PollJob into one synchronous round trip. The orchestrator
// never branches on which variant is active.
type Backend interface {
	CreateConversation(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, conversationID, role, text string) error
	StartJob(ctx context.Context, conversationID, assistantID string) (*Job, error)
	PollJob(ctx context.Context, conversationID, jobID string) (*Job, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	ListAssistants(ctx context.Context) ([]Assistant, error)
	RetrieveAssistant(ctx context.Context, id string) (*Assistant, error)
}

type Provider string

const (
	ProviderAuto      Provider = "auto"
	ProviderPrimary   Provider = "primary"
	ProviderAlternate Provider = "alternate"
)

// Options configures backend construction. Profiles are only consulted by
// the direct-call variant, which has no server-side assistant objects.
type Options struct {
	Provider          Provider
	APIKey            string
	AlternateAPIKey   string
	AlternateEndpoint string
	Profiles          []Profile
	Logger            *slog.Logger
}

func NewBackend(opts Options) (Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	provider, err := ResolveProvider(opts)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ProviderPrimary:
		return newOpenAIBackend(opts), nil
	case ProviderAlternate:
		return newAnthropicBackend(opts), nil
	default:
		return nil, NewConfigError("unsupported provider %q", provider)
	}
}

// ResolveProvider turns "auto" into a concrete choice: primary when its key
// is configured, else alternate.
func ResolveProvider(opts Options) (Provider, error) {
	switch opts.Provider {
	case ProviderPrimary:
		return ProviderPrimary, nil
	case ProviderAlternate:
		return ProviderAlternate, nil
	case ProviderAuto, "":
		if opts.APIKey != "" {
			return ProviderPrimary, nil
		}
		if opts.AlternateAPIKey != "" {
			return ProviderAlternate, nil
		}
		return "", NewConfigError("no API key configured for any provider")
	default:
		return "", NewConfigError("unsupported provider %q", opts.Provider)
	}
}
