package voice

import "errors"

// ErrorKind classifies controller and collaborator failures. The kind
// decides the safe state the machine moves to: transient recognition
// errors are absorbed, auth failures end the conversation, service and
// playback failures surface an inline turn and resume listening.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrRecognitionTransient
	ErrRecognitionFatal
	ErrSubmissionRejected
	ErrAuth
	ErrService
	ErrPlayback
)

func (k ErrorKind) String() string {
	switch k {
	case ErrRecognitionTransient:
		return "recognition_transient"
	case ErrRecognitionFatal:
		return "recognition_fatal"
	case ErrSubmissionRejected:
		return "submission_rejected"
	case ErrAuth:
		return "auth"
	case ErrService:
		return "service"
	case ErrPlayback:
		return "playback"
	}
	return "unknown"
}

// Error is a classified failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Message }

// NewError builds a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf extracts the classification from err, ErrUnknown when unclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}
