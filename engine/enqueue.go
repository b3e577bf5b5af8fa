package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/relaynet/approvaldist/model/approval"
	"github.com/relaynet/approvaldist/module"
)

// IncompatibleInputTypeError is returned when an engine receives an
// input of a type it does not handle.
var IncompatibleInputTypeError = fmt.Errorf("incompatible input type")

// IsIncompatibleInputTypeError reports whether the error marks an
// input the engine does not handle.
func IsIncompatibleInputTypeError(err error) bool {
	return errors.Is(err, IncompatibleInputTypeError)
}

// Message is an inbound event paired with its origin.
type Message struct {
	OriginID approval.Identifier
	Payload  interface{}
}

// MessageStore abstracts how messages are buffered in memory before
// being handled by an engine.
type MessageStore interface {
	Put(*Message) bool
	Get() (*Message, bool)
}

// Pattern dispatches matching messages into a store, with optional
// hooks applied before storing.
type Pattern struct {
	// Match matches a message to this pattern, typically by payload type.
	Match MatchFunc
	// Map transforms a matched message before storing, if set.
	Map MapFunc
	// Store receives matched messages.
	Store MessageStore
	// BeforeStore hooks run on every matched message prior to storing.
	BeforeStore []OnMessageFunc
}

type OnMessageFunc func(*Message)

type MatchFunc func(*Message) bool

type MapFunc func(*Message) *Message

// MessageHandler routes inbound messages into per-pattern stores and
// notifies a single consumer that work is pending. A message matches
// at most one pattern.
type MessageHandler struct {
	log      zerolog.Logger
	notifier module.Notifier
	patterns []Pattern
}

func NewMessageHandler(log zerolog.Logger, notifier module.Notifier, patterns ...Pattern) *MessageHandler {
	return &MessageHandler{
		log:      log.With().Str("component", "message_handler").Logger(),
		notifier: notifier,
		patterns: patterns,
	}
}

// Process stores the message in the first matching pattern's store and
// notifies the consumer. Unmatched messages are dropped with
// IncompatibleInputTypeError.
func (e *MessageHandler) Process(originID approval.Identifier, payload interface{}) error {
	msg := &Message{
		OriginID: originID,
		Payload:  payload,
	}

	for _, pattern := range e.patterns {
		if pattern.Match(msg) {
			if pattern.Map != nil {
				msg = pattern.Map(msg)
			}

			for _, apply := range pattern.BeforeStore {
				apply(msg)
			}

			ok := pattern.Store.Put(msg)
			if !ok {
				e.log.Warn().
					Str("msg_type", fmt.Sprintf("%T", payload)).
					Str("origin_id", originID.String()).
					Msg("failed to store message - discarding")
				return nil
			}
			e.notifier.Notify()

			// message can only be matched by one pattern, and processed by one handler
			return nil
		}
	}

	return fmt.Errorf("no matching processor for message of type %T: %w", payload, IncompatibleInputTypeError)
}

// GetNotifier returns the channel closed-and-reopened (capacity one)
// whenever new work is stored.
func (e *MessageHandler) GetNotifier() <-chan struct{} {
	return e.notifier.Channel()
}
