package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned when a message has neither text nor an
	// attachment. Callers should re-prompt, not retry.
	ErrEmptyMessage = errors.New("message must contain text or an attachment")

	// ErrUnknownPriority is returned for a priority outside the known set.
	ErrUnknownPriority = errors.New("unknown message priority")

	// ErrSelfConversation is returned when both participants of a
	// conversation resolve to the same user.
	ErrSelfConversation = errors.New("conversation requires two distinct participants")

	// ErrNotInitialized signals an operation invoked before Initialize.
	ErrNotInitialized = errors.New("messaging session not initialized")

	// ErrConversationNotFound is returned when a conversation id resolves
	// to nothing.
	ErrConversationNotFound = errors.New("conversation not found")
)

// StoreError wraps an underlying query/write/subscription failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// PartialSendError reports that a message was persisted but the
// conversation preview/unread update failed afterwards. The message must
// NOT be resent; only the conversation update needs a retry.
type PartialSendError struct {
	MessageID string
	Err       error
}

func (e *PartialSendError) Error() string {
	return fmt.Sprintf("message %s stored but conversation update failed: %v", e.MessageID, e.Err)
}

func (e *PartialSendError) Unwrap() error { return e.Err }
