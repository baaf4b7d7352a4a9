package chat

import (
	"strings"

	"github.com/go-go-golems/flowchat/pkg/artifact"
)

// EventType tags one entry in a session's history.
type EventType string

const (
	// EventUser is an inbound conversational turn from the client.
	EventUser EventType = "user"
	// EventStart marks the beginning of a bot turn, before any content exists.
	EventStart EventType = "start"
	// EventStream carries one incremental token of a bot turn.
	EventStream EventType = "stream"
	// EventEnd carries the final answer (or error terminal) of a bot turn.
	EventEnd EventType = "end"
	// EventFile carries a transcoded computed artifact.
	EventFile EventType = "file"
)

// Event is one immutable chat history entry, in its wire shape. Message is a
// pointer so start/file events serialize as null, matching the client
// contract.
type Event struct {
	Message           *string       `json:"message"`
	Type              EventType     `json:"type"`
	IntermediateSteps string        `json:"intermediate_steps"`
	IsBot             bool          `json:"is_bot"`
	Data              string        `json:"data,omitempty"`
	DataType          artifact.Kind `json:"data_type,omitempty"`
}

// IsControl reports whether the event is a start/stream control event, which
// filtered history reads exclude.
func (e Event) IsControl() bool {
	return e.Type == EventStart || e.Type == EventStream
}

func strPtr(s string) *string { return &s }

func NewUserMessage(text string) Event {
	return Event{Message: strPtr(text), Type: EventUser}
}

func NewStreamStart() Event {
	return Event{Type: EventStart, IsBot: true}
}

func NewStreamToken(token string) Event {
	return Event{Message: strPtr(token), Type: EventStream, IsBot: true}
}

func NewFinalAnswer(result string, intermediateSteps string) Event {
	return Event{
		Message:           strPtr(result),
		Type:              EventEnd,
		IntermediateSteps: strings.TrimSpace(intermediateSteps),
		IsBot:             true,
	}
}

// NewErrorEnd is the terminal event appended when a turn fails, so a client
// that is still connected is not left waiting.
func NewErrorEnd(errText string) Event {
	return Event{
		Message:           strPtr(""),
		Type:              EventEnd,
		IntermediateSteps: errText,
		IsBot:             true,
	}
}

func NewFileEvent(data string, kind artifact.Kind) Event {
	return Event{Type: EventFile, IsBot: true, Data: data, DataType: kind}
}
