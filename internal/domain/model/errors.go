package model

import (
	"errors"
	"fmt"
)

// Error kinds shared by every stage. Adapters wrap these so callers can
// classify failures with errors.Is.
var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrFormat             = errors.New("format error")
	ErrFeedUnavailable    = errors.New("feed unavailable")
	ErrAuth               = errors.New("auth error")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrTransport          = errors.New("transport error")
)

// Kind is the stable name of an error kind.
type Kind string

// Kind values, one per sentinel.
const (
	KindSourceUnavailable  Kind = "SourceUnavailable"
	KindFormat             Kind = "FormatError"
	KindFeedUnavailable    Kind = "FeedUnavailable"
	KindAuth               Kind = "AuthError"
	KindSubmissionRejected Kind = "SubmissionRejected"
	KindTransport          Kind = "TransportError"
	KindUnknown            Kind = "Unknown"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrSourceUnavailable, KindSourceUnavailable},
	{ErrFormat, KindFormat},
	{ErrFeedUnavailable, KindFeedUnavailable},
	{ErrAuth, KindAuth},
	{ErrSubmissionRejected, KindSubmissionRejected},
	{ErrTransport, KindTransport},
}

// KindOf returns the kind of the first sentinel err wraps.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// StageError carries the stage and record an error happened at.
type StageError struct {
	Stage  Stage
	Record string // record identifier, e.g. "modules.csv:7" or a person's name
	Err    error
}

// NewStageError wraps err with stage and record context.
func NewStageError(stage Stage, record string, err error) *StageError {
	return &StageError{Stage: stage, Record: record, Err: err}
}

func (e *StageError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Record, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
