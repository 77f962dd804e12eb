// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mail renders templated emails and hands them to a transport.
package mail

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// Template names used by visitor flows.
const (
	TemplatePasswordReset = "password_reset"
	TemplateInvitation    = "invitation"
)

// Site describes the deployment in outgoing mail.
type Site struct {
	Name    string
	BaseURL string
}

// Context is the data made available to email templates.
type Context struct {
	User     any
	UID      string
	Token    string
	TokenURL string
	Site     Site
}

// Message is a rendered email ready for delivery.
type Message struct {
	Template string
	From     string
	To       string
	Subject  string
	Text     string
	HTML     string
	// Data is the template context the message was rendered from.
	Data Context
}

// TemplateSender sends an email rendered from a named template.
type TemplateSender interface {
	SendEmail(ctx context.Context, templateName, recipient string, data Context) error
}

// Transport delivers rendered messages.
type Transport interface {
	Deliver(ctx context.Context, msg *Message) error
}

// DeliveryRecorder receives one status per send attempt.
type DeliveryRecorder interface {
	RecordEmail(template, status string)
}

// Sender implements TemplateSender on top of a Renderer and a Transport.
type Sender struct {
	renderer  *Renderer
	transport Transport
	from      string
	recorder  DeliveryRecorder
	logger    *slog.Logger
}

// NewSender creates a Sender with a no-op logger.
func NewSender(renderer *Renderer, transport Transport, from string) (*Sender, error) {
	return NewSenderWithLogger(renderer, transport, from, slog.New(slog.DiscardHandler))
}

// NewSenderWithLogger creates a Sender with the provided logger.
func NewSenderWithLogger(renderer *Renderer, transport Transport, from string, logger *slog.Logger) (*Sender, error) {
	if renderer == nil {
		return nil, oops.Errorf("renderer is required")
	}
	if transport == nil {
		return nil, oops.Errorf("transport is required")
	}
	if from == "" {
		return nil, oops.Errorf("from address is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Sender{
		renderer:  renderer,
		transport: transport,
		from:      from,
		logger:    logger,
	}, nil
}

// WithRecorder returns s reporting delivery outcomes to r.
func (s *Sender) WithRecorder(r DeliveryRecorder) *Sender {
	s.recorder = r
	return s
}

// SendEmail renders templateName with data and delivers it to recipient.
func (s *Sender) SendEmail(ctx context.Context, templateName, recipient string, data Context) error {
	msg, err := s.renderer.Render(templateName, data)
	if err != nil {
		s.record(templateName, "render_failed")
		return err
	}
	msg.From = s.from
	msg.To = recipient

	if err := s.transport.Deliver(ctx, msg); err != nil {
		s.record(templateName, "failed")
		return oops.Code("MAIL_DELIVERY_FAILED").
			With("template", templateName).
			With("recipient", recipient).
			Errorf("deliver message: %v", err)
	}

	s.record(templateName, "sent")
	s.logger.InfoContext(ctx, "email sent", "template", templateName, "recipient", recipient)
	return nil
}

func (s *Sender) record(template, status string) {
	if s.recorder != nil {
		s.recorder.RecordEmail(template, status)
	}
}
