// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	texttemplate "text/template"

	"github.com/samber/oops"
)

//go:embed templates/*
var templatesFS embed.FS

// Renderer turns a template name and Context into a Message.
// Each template consists of <name>.subject.txt, <name>.txt and an optional
// <name>.html.
type Renderer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

// NewRenderer parses the built-in templates.
func NewRenderer() (*Renderer, error) {
	return NewRendererFS(templatesFS, "templates")
}

// NewRendererFS parses templates from dir in fsys.
func NewRendererFS(fsys fs.FS, dir string) (*Renderer, error) {
	text, err := texttemplate.ParseFS(fsys, dir+"/*.txt")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_PARSE_FAILED").With("kind", "text").Wrap(err)
	}

	html := htmltemplate.New("")
	matches, err := fs.Glob(fsys, dir+"/*.html")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_PARSE_FAILED").With("kind", "html").Wrap(err)
	}
	if len(matches) > 0 {
		if html, err = htmltemplate.ParseFS(fsys, dir+"/*.html"); err != nil {
			return nil, oops.Code("MAIL_TEMPLATE_PARSE_FAILED").With("kind", "html").Wrap(err)
		}
	}

	return &Renderer{text: text, html: html}, nil
}

// Render executes the named template set.
func (r *Renderer) Render(name string, data Context) (*Message, error) {
	subject, err := r.execText(name+".subject.txt", data)
	if err != nil {
		return nil, err
	}
	body, err := r.execText(name+".txt", data)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Template: name,
		Subject:  strings.TrimSpace(subject),
		Text:     body,
		Data:     data,
	}

	if t := r.html.Lookup(name + ".html"); t != nil {
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return nil, oops.Code("MAIL_TEMPLATE_RENDER_FAILED").With("template", name+".html").Wrap(err)
		}
		msg.HTML = buf.String()
	}
	return msg, nil
}

func (r *Renderer) execText(name string, data Context) (string, error) {
	t := r.text.Lookup(name)
	if t == nil {
		return "", oops.Code("MAIL_TEMPLATE_NOT_FOUND").With("template", name).Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", oops.Code("MAIL_TEMPLATE_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return buf.String(), nil
}
