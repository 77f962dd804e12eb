// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package token_test

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/visitor/internal/token"
	"github.com/holomush/visitor/pkg/errutil"
)

type subject struct {
	id         int64
	credential string
	lastLogin  time.Time
}

func (s subject) TokenSubjectID() int64     { return s.id }
func (s subject) TokenCredential() string   { return s.credential }
func (s subject) TokenLastLogin() time.Time { return s.lastLogin }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var issued = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newGenerator(t *testing.T, opts ...token.Option) *token.Generator {
	t.Helper()
	g, err := token.NewGenerator("secret", token.SaltPasswordReset, append([]token.Option{token.WithClock(fixedClock(issued))}, opts...)...)
	require.NoError(t, err)
	return g
}

func TestEncodeDecodeID(t *testing.T) {
	tests := []struct {
		id      int64
		encoded string
	}{
		{1, "1"},
		{35, "z"},
		{36, "10"},
		{1234567, "qglj"},
		{math.MaxInt64, "1y2p0ij32e8e7"},
	}
	for _, tt := range tests {
		t.Run(tt.encoded, func(t *testing.T) {
			assert.Equal(t, tt.encoded, token.EncodeID(tt.id))
			got, err := token.DecodeID(tt.encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.id, got)
		})
	}
}

func TestDecodeID_AcceptsUppercase(t *testing.T) {
	got, err := token.DecodeID("QGLJ")
	require.NoError(t, err)
	assert.Equal(t, int64(1234567), got)
}

func TestDecodeID_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("1", token.MaxBase36Length+1)},
		{"sign", "-1"},
		{"plus", "+1"},
		{"punctuation", "a.b"},
		{"non-ascii", "ä"},
		{"overflow", "zzzzzzzzzzzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := token.DecodeID(tt.input)
			errutil.AssertErrorCode(t, err, "TOKEN_DECODE_FAILED")
		})
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	_, err := token.NewGenerator("", token.SaltInvitation)
	errutil.AssertErrorCode(t, err, "TOKEN_SECRET_REQUIRED")

	_, err = token.NewGenerator("secret", "")
	errutil.AssertErrorCode(t, err, "TOKEN_SALT_REQUIRED")

	_, err = token.NewGenerator("secret", token.SaltInvitation, token.WithMaxAge(-time.Hour))
	errutil.AssertErrorCode(t, err, "TOKEN_INVALID_MAX_AGE")
}

func TestGenerator_TokenShape(t *testing.T) {
	g := newGenerator(t)
	tok := g.MakeToken(subject{id: 1, credential: "hash"})

	ts, hash, found := strings.Cut(tok, "-")
	require.True(t, found)
	days, err := token.DecodeID(ts)
	require.NoError(t, err)
	assert.Equal(t, int64(9251), days) // 2001-01-01 to 2026-05-01
	assert.Len(t, hash, 20)
	assert.Regexp(t, `^[0-9a-f]{20}$`, hash)
}

func TestGenerator_Deterministic(t *testing.T) {
	g := newGenerator(t)
	s := subject{id: 7, credential: "hash", lastLogin: issued}
	assert.Equal(t, g.MakeToken(s), g.MakeToken(s))
}

func TestGenerator_CheckToken(t *testing.T) {
	s := subject{id: 7, credential: "hash", lastLogin: time.Date(2026, 4, 30, 8, 0, 0, 0, time.UTC)}
	g := newGenerator(t)
	tok := g.MakeToken(s)

	t.Run("round trip", func(t *testing.T) {
		assert.True(t, g.CheckToken(s, tok))
	})

	t.Run("credential change invalidates", func(t *testing.T) {
		changed := s
		changed.credential = "other"
		assert.False(t, g.CheckToken(changed, tok))
	})

	t.Run("last login change invalidates", func(t *testing.T) {
		changed := s
		changed.lastLogin = s.lastLogin.Add(time.Second)
		assert.False(t, g.CheckToken(changed, tok))
	})

	t.Run("sub-second last login change is ignored", func(t *testing.T) {
		changed := s
		changed.lastLogin = s.lastLogin.Add(500 * time.Millisecond)
		assert.True(t, g.CheckToken(changed, tok))
	})

	t.Run("other subject", func(t *testing.T) {
		other := s
		other.id = 8
		assert.False(t, g.CheckToken(other, tok))
	})

	t.Run("other salt", func(t *testing.T) {
		inv, err := token.NewGenerator("secret", token.SaltInvitation, token.WithClock(fixedClock(issued)))
		require.NoError(t, err)
		assert.False(t, inv.CheckToken(s, tok))
	})

	t.Run("other secret", func(t *testing.T) {
		rotated, err := token.NewGenerator("rotated", token.SaltPasswordReset, token.WithClock(fixedClock(issued)))
		require.NoError(t, err)
		assert.False(t, rotated.CheckToken(s, tok))
	})

	t.Run("malformed", func(t *testing.T) {
		for _, bad := range []string{"", "nodash", "-abc", "!!-0123456789abcdef0123", tok + "0", strings.ToUpper(tok)} {
			assert.False(t, g.CheckToken(s, bad), bad)
		}
	})

	t.Run("nil subject", func(t *testing.T) {
		assert.False(t, g.CheckToken(nil, tok))
	})
}

func TestGenerator_Age(t *testing.T) {
	s := subject{id: 7, credential: "hash"}
	tok := newGenerator(t).MakeToken(s)

	later := func(d time.Duration, opts ...token.Option) *token.Generator {
		g, err := token.NewGenerator("secret", token.SaltPasswordReset,
			append([]token.Option{token.WithClock(fixedClock(issued.Add(d)))}, opts...)...)
		require.NoError(t, err)
		return g
	}

	assert.True(t, later(365*24*time.Hour).CheckToken(s, tok), "unbounded by default")
	assert.True(t, later(3*24*time.Hour, token.WithMaxAge(3*24*time.Hour)).CheckToken(s, tok))
	assert.False(t, later(4*24*time.Hour, token.WithMaxAge(3*24*time.Hour)).CheckToken(s, tok))
	assert.False(t, later(-48*time.Hour).CheckToken(s, tok), "future timestamps are rejected")
}

func TestParseLink(t *testing.T) {
	uid, tok, ok := token.ParseLink("/1b-d4t1zx-0123456789abcdef0123/")
	require.True(t, ok)
	assert.Equal(t, "1b", uid)
	assert.Equal(t, "d4t1zx-0123456789abcdef0123", tok)

	for _, bad := range []string{"", "1b", "1b-token", "1b-d4t-0123456789abcdef01234", "1b_d4t-abc", "1b-d4t-abc/extra"} {
		_, _, ok := token.ParseLink(bad)
		assert.False(t, ok, bad)
	}
}

func TestFormatLink(t *testing.T) {
	assert.Equal(t, "https://x.test/user/invitation/z-abc-123/", token.FormatLink("https://x.test/user/invitation/", 35, "abc-123"))
}

func TestLinkRoundTrip(t *testing.T) {
	g := newGenerator(t)
	s := subject{id: 123456, credential: "hash"}
	tok := g.MakeToken(s)

	uid, parsedTok, ok := token.ParseLink(strings.TrimPrefix(token.FormatLink("/user/reset_password", s.id, tok), "/user/reset_password"))
	require.True(t, ok)
	id, err := token.DecodeID(uid)
	require.NoError(t, err)
	assert.Equal(t, s.id, id)
	assert.True(t, g.CheckToken(s, parsedTok))
}
