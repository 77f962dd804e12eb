// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package token derives and checks stateless verification tokens.
//
// A token binds a subject's current credential hash and last login time to
// the day it was issued. Nothing is stored: a token is re-derived on every
// check, so any change to the subject's password or last login invalidates
// every token issued before it.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Key salts separate tokens minted for different flows.
const (
	SaltPasswordReset = "visitor.token.PasswordReset"
	SaltInvitation    = "visitor.token.Invitation"
)

// hashChars is the length of the hash part of a token (10 bytes hex-encoded).
const hashChars = 20

// epoch is day zero for token timestamps.
var epoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// PlaceholderLastLogin stands in for the last login of subjects that have
// never authenticated.
var PlaceholderLastLogin = time.Date(2013, time.January, 1, 0, 0, 0, 0, time.UTC)

// Subject is anything a token can be issued for.
type Subject interface {
	TokenSubjectID() int64
	TokenCredential() string
	TokenLastLogin() time.Time
}

// Generator makes and checks tokens for one flow.
type Generator struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAge bounds how old an accepted token may be. Age is measured in
// whole days; zero (the default) accepts tokens of any age.
func WithMaxAge(d time.Duration) Option {
	return func(g *Generator) { g.maxAge = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator keyed by secret and keySalt.
func NewGenerator(secret, keySalt string, opts ...Option) (*Generator, error) {
	if secret == "" {
		return nil, oops.Code("TOKEN_SECRET_REQUIRED").Errorf("token secret cannot be empty")
	}
	if keySalt == "" {
		return nil, oops.Code("TOKEN_SALT_REQUIRED").Errorf("token key salt cannot be empty")
	}
	key := sha256.Sum256([]byte(keySalt + secret))
	g := &Generator{key: key[:], now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxAge < 0 {
		return nil, oops.Code("TOKEN_INVALID_MAX_AGE").With("max_age", g.maxAge).Errorf("max age cannot be negative")
	}
	return g, nil
}

// MakeToken returns a token for subject valid from today.
func (g *Generator) MakeToken(subject Subject) string {
	return g.tokenAt(subject, g.today())
}

// CheckToken reports whether tok was issued for subject in its current state
// and is not older than the configured max age.
func (g *Generator) CheckToken(subject Subject, tok string) bool {
	if subject == nil || tok == "" {
		return false
	}
	tsPart, _, found := strings.Cut(tok, "-")
	if !found {
		return false
	}
	ts, err := DecodeID(tsPart)
	if err != nil || ts < 0 {
		return false
	}

	today := g.today()
	if ts > today {
		return false
	}
	if g.maxAge > 0 && time.Duration(today-ts)*24*time.Hour > g.maxAge {
		return false
	}

	expected := g.tokenAt(subject, ts)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(tok)) == 1
}

func (g *Generator) today() int64 {
	return int64(g.now().UTC().Sub(epoch) / (24 * time.Hour))
}

func (g *Generator) tokenAt(subject Subject, ts int64) string {
	mac := hmac.New(sha256.New, g.key)
	// hash.Hash writes never fail
	_, _ = mac.Write([]byte(strconv.FormatInt(subject.TokenSubjectID(), 10)))
	_, _ = mac.Write([]byte(subject.TokenCredential()))
	_, _ = mac.Write([]byte(subject.TokenLastLogin().UTC().Truncate(time.Second).Format("2006-01-02 15:04:05")))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	sum := mac.Sum(nil)
	return EncodeID(ts) + "-" + hex.EncodeToString(sum[:hashChars/2])
}
