// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"context"
	"net/http"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
)

type stateKey struct{}

// requestState is per-request data shared by middleware and handlers.
type requestState struct {
	session *auth.WebSession
	account *account.Account
	flashes []Flash
}

func withState(r *http.Request, st *requestState) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), stateKey{}, st))
}

func stateOf(r *http.Request) *requestState {
	if st, ok := r.Context().Value(stateKey{}).(*requestState); ok {
		return st
	}
	return &requestState{}
}

// CurrentAccount returns the signed-in account, or nil.
func CurrentAccount(r *http.Request) *account.Account {
	return stateOf(r).account
}

func currentSession(r *http.Request) *auth.WebSession {
	return stateOf(r).session
}

func pendingFlashes(r *http.Request) []Flash {
	return stateOf(r).flashes
}

func setPendingFlashes(r *http.Request, flashes []Flash) {
	if st, ok := r.Context().Value(stateKey{}).(*requestState); ok {
		st.flashes = flashes
	}
}

func setSignedIn(r *http.Request, session *auth.WebSession, acct *account.Account) {
	if st, ok := r.Context().Value(stateKey{}).(*requestState); ok {
		st.session = session
		st.account = acct
	}
}
