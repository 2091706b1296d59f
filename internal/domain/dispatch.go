package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Dispatch is a record of one call that was redirected to the broker.
type Dispatch struct {
	ID        uuid.UUID
	Handler   string
	RawQueue  string // Queue identifier as declared, placeholders included
	Queue     string // Literal queue name the payload was published to
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NewDispatch creates a Dispatch record with a generated ID.
func NewDispatch(handler, rawQueue, queue string, payload json.RawMessage) Dispatch {
	return Dispatch{
		ID:        uuid.New(),
		Handler:   handler,
		RawQueue:  rawQueue,
		Queue:     queue,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Domain errors
var (
	ErrUnresolvedKey     = errors.New("unresolved key")
	ErrInvalidExpression = errors.New("invalid expression")
	ErrUnknownHandler    = errors.New("unknown handler")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrDuplicateHandler  = errors.New("duplicate handler")
)
