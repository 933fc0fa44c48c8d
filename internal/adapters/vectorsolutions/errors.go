package vectorsolutions

import (
	"errors"
	"fmt"

	"github.com/okian/trainingbot/internal/domain/model"
)

// Rejection causes. Each wraps model.ErrSubmissionRejected when returned.
var (
	ErrNotStarted          = errors.New("browser session not started")
	ErrSessionExpired      = errors.New("session expired")
	ErrTopicNotFound       = errors.New("topic checkbox not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNoSuccessCue        = errors.New("no confirmation after submit")
	ErrValidation          = errors.New("form validation failed")
)

func rejected(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", model.ErrSubmissionRejected, cause, fmt.Sprintf(format, args...))
}

func transport(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrTransport, step, err)
}

// classify keeps classified errors and maps everything else coming out of
// the browser to a transport failure.
func classify(step string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrSubmissionRejected), errors.Is(err, model.ErrTransport), errors.Is(err, model.ErrAuth):
		return err
	default:
		return transport(step, err)
	}
}
