package events

import (
	"log/slog"

	evbus "github.com/asaskevich/EventBus"
)

// Bus topics.
const (
	TopicLine     = "transcription.update"
	TopicComplete = "transcription.complete"
)

// Sink receives incremental transcript-line events and final transcript
// snapshots for delivery to subscribers.
type Sink interface {
	// PublishLine is called for every new transcript line, with the full
	// transcript accumulated so far.
	PublishLine(sessionID, text, fullText string)

	// PublishComplete is called once when a session stops, with the final
	// transcript.
	PublishComplete(sessionID, fullText string)
}

// LineEvent is published on TopicLine for each new transcript line.
type LineEvent struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	FullText  string `json:"full_text"`
}

// CompleteEvent is published on TopicComplete when a session stops.
type CompleteEvent struct {
	SessionID string `json:"session_id"`
	FullText  string `json:"full_text"`
}

// Bus is a Sink backed by an in-process event bus. Handlers subscribed to
// a topic run for every published event.
type Bus struct {
	bus    evbus.Bus
	logger *slog.Logger
}

// NewBus creates an event bus sink.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		bus:    evbus.New(),
		logger: logger,
	}
}

// PublishLine implements Sink.
func (b *Bus) PublishLine(sessionID, text, fullText string) {
	b.bus.Publish(TopicLine, LineEvent{
		SessionID: sessionID,
		Text:      text,
		FullText:  fullText,
	})
}

// PublishComplete implements Sink.
func (b *Bus) PublishComplete(sessionID, fullText string) {
	b.bus.Publish(TopicComplete, CompleteEvent{
		SessionID: sessionID,
		FullText:  fullText,
	})
}

// SubscribeLine registers a handler for transcript-line events.
func (b *Bus) SubscribeLine(fn func(LineEvent)) error {
	return b.bus.Subscribe(TopicLine, fn)
}

// SubscribeComplete registers a handler for session-complete events.
func (b *Bus) SubscribeComplete(fn func(CompleteEvent)) error {
	return b.bus.Subscribe(TopicComplete, fn)
}

// UnsubscribeLine removes a transcript-line handler.
func (b *Bus) UnsubscribeLine(fn func(LineEvent)) error {
	return b.bus.Unsubscribe(TopicLine, fn)
}

// UnsubscribeComplete removes a session-complete handler.
func (b *Bus) UnsubscribeComplete(fn func(CompleteEvent)) error {
	return b.bus.Unsubscribe(TopicComplete, fn)
}
