// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
)

// LogTransport writes messages to a logger instead of sending them.
// Useful in development, where the reset and invitation links are read
// from the log.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a LogTransport.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

// Deliver logs msg.
func (t *LogTransport) Deliver(ctx context.Context, msg *Message) error {
	t.logger.InfoContext(ctx, "email",
		"template", msg.Template,
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}

// Outbox keeps delivered messages in memory.
type Outbox struct {
	mu       sync.Mutex
	messages []*Message
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Deliver appends msg.
func (o *Outbox) Deliver(_ context.Context, msg *Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns a copy of the delivered messages in order.
func (o *Outbox) Messages() []*Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Last returns the most recent message, or nil.
func (o *Outbox) Last() *Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.messages) == 0 {
		return nil
	}
	return o.messages[len(o.messages)-1]
}

// Reset discards all messages.
func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = nil
}
