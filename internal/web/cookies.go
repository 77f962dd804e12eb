// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/holomush/visitor/internal/auth"
)

// Cookie names.
const (
	SessionCookie = "visitor_session"
	FlashCookie   = "visitor_flash"
)

// Flash levels.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelError   = "error"
)

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type cookieJar struct {
	secure bool
}

func (c cookieJar) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieJar) setSession(w http.ResponseWriter, token string) {
	c.set(w, SessionCookie, token, int(auth.SessionTokenExpiry.Seconds()))
}

func (c cookieJar) clearSession(w http.ResponseWriter) {
	c.set(w, SessionCookie, "", -1)
}

func readSession(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	return value, value != ""
}

// addFlash queues f for the next page. Messages already queued in this
// request or by a previous redirect are kept.
func (c cookieJar) addFlash(w http.ResponseWriter, r *http.Request, f Flash) {
	flashes := append(pendingFlashes(r), f)
	payload, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	setPendingFlashes(r, flashes)
	c.set(w, FlashCookie, base64.RawURLEncoding.EncodeToString(payload), 0)
}

// takeFlashes returns and clears the queued messages.
func (c cookieJar) takeFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := pendingFlashes(r)
	if len(flashes) > 0 {
		c.set(w, FlashCookie, "", -1)
		setPendingFlashes(r, nil)
	}
	return flashes
}

func decodeFlashes(raw string) []Flash {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(decoded, &flashes); err != nil {
		return nil
	}
	out := flashes[:0]
	for _, f := range flashes {
		switch f.Level {
		case LevelSuccess, LevelInfo, LevelError:
			if f.Message != "" {
				out = append(out, f)
			}
		}
	}
	return out
}
