package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAssistantNotFound is returned when an assistant id resolves to nothing
// on the active backend.
var ErrAssistantNotFound = errors.New("assistant not found")

// ConfigError marks a misconfiguration (unsupported provider, missing key).
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

func NewConfigError(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// InvalidInputError rejects a request before any backend call is made.
type InvalidInputError struct {
	msg string
}

func (e *InvalidInputError) Error() string {
	return e.msg
}

func NewInvalidInputError(format string, args ...any) error {
	return &InvalidInputError{msg: fmt.Sprintf(format, args...)}
}

func IsInvalidInput(err error) bool {
	var inputErr *InvalidInputError
	return errors.As(err, &inputErr)
}

// BackendUnavailableError wraps a transport failure on one of the backend
// operations. The orchestrator never retries these; the caller decides.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

func IsBackendUnavailable(err error) bool {
	var unavailErr *BackendUnavailableError
	return errors.As(err, &unavailErr)
}

// AuthenticationError marks a request rejected for a bad or missing API key.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication rejected: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// RunFailedError reports a job that reached a terminal status other than
// completed.
type RunFailedError struct {
	Status JobStatus
	Reason string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run ended with status %q: %s", e.Status, e.Reason)
}

// MalformedResponseError marks a completed job whose reply held no
// extractable text.
type MalformedResponseError struct {
	msg string
}

func (e *MalformedResponseError) Error() string {
	return e.msg
}

func NewMalformedResponseError(format string, args ...any) error {
	return &MalformedResponseError{msg: fmt.Sprintf(format, args...)}
}

func IsMalformedResponse(err error) bool {
	var malformedErr *MalformedResponseError
	return errors.As(err, &malformedErr)
}

// looksLikeAuthError is the last-resort fallback for transports that expose
// no status code: it sniffs the error text. All substring matching is
// confined to this one function.
func looksLikeAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "incorrect api key") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "invalid x-api-key")
}
