package eventbus

import (
	"sync"
)

// Message is a message seen by a RecordingPublisher.
type Message struct {
	Topic string
	Data  any
}

// RecordingPublisher keeps every published message in memory.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (p *RecordingPublisher) Publish(topic string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.messages = append(p.messages, Message{Topic: topic, Data: data})
	return nil
}

func (p *RecordingPublisher) Stop() {}

// Messages returns a copy of all published messages.
func (p *RecordingPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
