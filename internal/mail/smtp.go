// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"context"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS string
}

// SMTPTransport delivers messages through an SMTP relay.
type SMTPTransport struct {
	client *gomail.Client
}

// NewSMTPTransport creates an SMTPTransport. No connection is opened until
// the first delivery.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}

	opts := []gomail.Option{gomail.WithTLSPolicy(tlsPolicy(cfg.TLS))}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPTransport{client: client}, nil
}

// Deliver sends msg over SMTP.
func (t *SMTPTransport) Deliver(ctx context.Context, msg *Message) error {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return oops.Code("MAIL_INVALID_ADDRESS").With("from", msg.From).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return oops.Code("MAIL_INVALID_ADDRESS").With("to", msg.To).Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("MAIL_SMTP_FAILED").With("to", msg.To).Wrap(err)
	}
	return nil
}

func tlsPolicy(name string) gomail.TLSPolicy {
	switch name {
	case "none":
		return gomail.NoTLS
	case "opportunistic":
		return gomail.TLSOpportunistic
	default:
		return gomail.TLSMandatory
	}
}
