// Package queuetest provides in-memory queue doubles for handler tests.
package queuetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/orderledger/pkg/queue"
)

// Message records how a handler settled it.
type Message struct {
	MsgID  string
	MsgKey string
	Body   []byte
	Attrs  map[string]string
	mu     sync.Mutex
	acked  int
	nacked int
}

func NewMessage(key string, body []byte) *Message {
	return &Message{MsgID: fmt.Sprintf("msg-%s", key), MsgKey: key, Body: body, Attrs: map[string]string{}}
}

func (m *Message) ID() string                    { return m.MsgID }
func (m *Message) Key() string                   { return m.MsgKey }
func (m *Message) Data() []byte                  { return m.Body }
func (m *Message) Attributes() map[string]string { return m.Attrs }

func (m *Message) Ack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
}

func (m *Message) Nack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked++
}

// Acked reports a single ack and no nack.
func (m *Message) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked == 1 && m.nacked == 0
}

// Nacked reports a single nack and no ack.
func (m *Message) Nacked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacked == 1 && m.acked == 0
}

// Publisher captures published messages.
type Publisher struct {
	mu   sync.Mutex
	Err  error
	Sent []queue.Outgoing
}

func (p *Publisher) Publish(_ context.Context, msg queue.Outgoing) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Sent = append(p.Sent, msg)
	return fmt.Sprintf("pub-%d", len(p.Sent)), nil
}

func (p *Publisher) Close() error { return nil }

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []queue.Outgoing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Outgoing(nil), p.Sent...)
}
