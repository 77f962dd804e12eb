// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/home"},
		{"/user/invitation/", "/user/invitation/"},
		{"/search?q=1", "/search?q=1"},
		{"relative/path", "/home"},
		{"//evil.example", "/home"},
		{`/\evil.example`, "/home"},
		{"https://evil.example/", "/home"},
		{"javascript:alert(1)", "/home"},
	}
	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			assert.Equal(t, tt.want, safeNext(tt.next, "/home"))
		})
	}
}

func TestLoginURLWithNext(t *testing.T) {
	assert.Equal(t, "/user/login/?next=%2Fa%2F", loginURLWithNext("/user/login/", "/a/"))
	assert.Equal(t, "/login?x=1&next=%2Fa%2F", loginURLWithNext("/login?x=1", "/a/"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:5120"
	assert.Equal(t, "192.0.2.7", clientIP(r))

	r.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(r))
}

func TestDecodeFlashes(t *testing.T) {
	raw := base64.RawURLEncoding.EncodeToString([]byte(`[{"level":"success","message":"hi"}]`))
	assert.Equal(t, []Flash{{Level: LevelSuccess, Message: "hi"}}, decodeFlashes(raw))

	assert.Empty(t, decodeFlashes("%%%"))
	assert.Empty(t, decodeFlashes(base64.RawURLEncoding.EncodeToString([]byte("not json"))))
}
