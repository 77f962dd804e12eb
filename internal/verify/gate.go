// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package verify decides whether a presented (compact id, token) pair
// currently authorizes a sensitive action.
//
// Every failure (malformed id, unknown subject, wrong or stale token) yields
// the same invalid Result. The reason is kept for logs and metrics only and
// must never be shown to the requester.
package verify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/token"
)

// Outcome labels reported to an OutcomeRecorder.
const (
	OutcomeValid         = "valid"
	OutcomeDecodeFailed  = "decode_failed"
	OutcomeNotFound      = "not_found"
	OutcomeTokenMismatch = "token_mismatch"
	OutcomeLookupFailed  = "lookup_failed"
)

// Reason codes carried by invalid results.
const (
	CodeDecodeFailed  = "VERIFY_DECODE_FAILED"
	CodeNotFound      = "VERIFY_NOT_FOUND"
	CodeTokenMismatch = "VERIFY_TOKEN_MISMATCH"
	CodeLookupFailed  = "VERIFY_LOOKUP_FAILED"
)

// TokenVerifier makes and checks tokens for subjects.
// token.Generator is the production implementation.
type TokenVerifier interface {
	MakeToken(subject token.Subject) string
	CheckToken(subject token.Subject, tok string) bool
}

// OutcomeRecorder receives one outcome per check.
type OutcomeRecorder interface {
	RecordVerification(flow, outcome string)
}

// Result is the outcome of a single verification attempt.
// Subject is the zero value unless the id resolved.
type Result[S token.Subject] struct {
	Subject S
	Valid   bool
	Reason  error
}

// Gate composes a Resolver and a TokenVerifier for one flow.
type Gate[S token.Subject] struct {
	flow     string
	resolver *Resolver[S]
	tokens   TokenVerifier
	recorder OutcomeRecorder
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewGate creates a Gate. flow names the guarded flow in logs and metrics.
func NewGate[S token.Subject](flow string, resolver *Resolver[S], tokens TokenVerifier) (*Gate[S], error) {
	return NewGateWithLogger(flow, resolver, tokens, slog.New(slog.DiscardHandler))
}

// NewGateWithLogger creates a Gate that logs rejection reasons at debug level.
func NewGateWithLogger[S token.Subject](flow string, resolver *Resolver[S], tokens TokenVerifier, logger *slog.Logger) (*Gate[S], error) {
	if flow == "" {
		return nil, oops.Errorf("flow name is required")
	}
	if resolver == nil {
		return nil, oops.Errorf("resolver is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Gate[S]{
		flow:     flow,
		resolver: resolver,
		tokens:   tokens,
		logger:   logger,
		tracer:   otel.Tracer("github.com/holomush/visitor/internal/verify"),
	}, nil
}

// WithRecorder returns g reporting outcomes to r.
func (g *Gate[S]) WithRecorder(r OutcomeRecorder) *Gate[S] {
	g.recorder = r
	return g
}

// Flow returns the flow name.
func (g *Gate[S]) Flow() string {
	return g.flow
}

// MakeToken issues a token for subject using the gate's verifier.
func (g *Gate[S]) MakeToken(subject S) string {
	return g.tokens.MakeToken(subject)
}

// Check resolves compactID and validates tok against the subject's current
// state. Nothing is cached: each call re-reads the subject.
func (g *Gate[S]) Check(ctx context.Context, compactID, tok string) Result[S] {
	ctx, span := g.tracer.Start(ctx, "verify.Check",
		trace.WithAttributes(attribute.String("verify.flow", g.flow)))
	defer span.End()

	var res Result[S]
	subject, err := g.resolver.Resolve(ctx, compactID)
	switch {
	case err != nil:
		res.Reason = err
	case !g.tokens.CheckToken(subject, tok):
		res.Subject = subject
		res.Reason = oops.Code(CodeTokenMismatch).
			With("subject_id", subject.TokenSubjectID()).
			Errorf("token does not match subject state")
	default:
		res.Subject = subject
		res.Valid = true
	}

	outcome := OutcomeFor(res.Reason)
	span.SetAttributes(attribute.String("verify.outcome", outcome))
	if g.recorder != nil {
		g.recorder.RecordVerification(g.flow, outcome)
	}
	switch {
	case outcome == OutcomeLookupFailed:
		g.logger.WarnContext(ctx, "verification lookup failed",
			"flow", g.flow,
			"reason", res.Reason,
		)
	case !res.Valid:
		g.logger.DebugContext(ctx, "verification rejected",
			"flow", g.flow,
			"outcome", outcome,
			"reason", res.Reason,
		)
	}
	return res
}

// CheckLink parses a "<uid>-<token>" segment and checks it. A segment that
// does not have the link shape is treated like an undecodable id.
func (g *Gate[S]) CheckLink(ctx context.Context, segment string) Result[S] {
	uid, tok, ok := token.ParseLink(segment)
	if !ok {
		uid, tok = "", ""
	}
	return g.Check(ctx, uid, tok)
}

// OutcomeFor maps a rejection reason to its outcome label.
func OutcomeFor(reason error) string {
	if reason == nil {
		return OutcomeValid
	}
	oopsErr, ok := oops.AsOops(reason)
	if !ok {
		return OutcomeLookupFailed
	}
	switch oopsErr.Code() {
	case CodeDecodeFailed:
		return OutcomeDecodeFailed
	case CodeNotFound:
		return OutcomeNotFound
	case CodeTokenMismatch:
		return OutcomeTokenMismatch
	default:
		return OutcomeLookupFailed
	}
}

// isNotFound reports whether err means the subject does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, account.ErrNotFound)
}
