// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// safeNext returns next when it is a local absolute path, else fallback.
// Scheme-relative ("//host") and backslash tricks are rejected.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}

func loginURLWithNext(loginURL, next string) string {
	sep := "?"
	if strings.Contains(loginURL, "?") {
		sep = "&"
	}
	return loginURL + sep + url.Values{"next": {next}}.Encode()
}

// nextParam reads next from the form body or the query string.
func nextParam(r *http.Request) string {
	if v := r.PostFormValue("next"); v != "" {
		return v
	}
	return r.URL.Query().Get("next")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
