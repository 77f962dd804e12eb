// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"fmt"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/pkg/errutil"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Register")
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, pageRegister, data)
		return
	}

	data.Form = formFrom(r, account.FieldEmail, account.FieldUsername)
	write, err := h.deps.Auth.PrepareRegistration(r.Context(), account.RegistrationInput{
		Email:     r.PostFormValue(account.FieldEmail),
		Username:  r.PostFormValue(account.FieldUsername),
		Password1: r.PostFormValue(account.FieldPassword1),
		Password2: r.PostFormValue(account.FieldPassword2),
	})
	if err == nil {
		_, err = write.Apply(r.Context())
	}
	if v, ok := account.AsValidationError(err); ok {
		data.Form = data.Form.withValidation(v)
		h.render(w, r, http.StatusOK, pageRegister, data)
		return
	}
	if err != nil {
		h.fail(w, r, "registration failed", err)
		return
	}

	if err := h.signIn(w, r, write.Value()); err != nil {
		h.fail(w, r, "sign in after registration failed", err)
		return
	}
	h.flashRedirect(w, r, LevelSuccess, MsgRegistered, h.opts.LoginRedirect)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Log in")
	data.Next = safeNext(nextParam(r), "")
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, pageLogin, data)
		return
	}

	data.Form = formFrom(r, "username")
	identity := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if identity == "" || password == "" {
		v := &account.ValidationError{}
		if identity == "" {
			v.Add("username", "This field is required.")
		}
		if password == "" {
			v.Add("password", "This field is required.")
		}
		data.Form = data.Form.withValidation(v)
		h.render(w, r, http.StatusOK, pageLogin, data)
		return
	}

	_, tok, err := h.deps.Auth.Login(r.Context(), identity, password, r.UserAgent(), clientIP(r))
	switch errutil.Code(err) {
	case "":
		if err != nil {
			h.fail(w, r, "login failed", err)
			return
		}
	case "AUTH_INVALID_CREDENTIALS":
		data.Form.NonField = []string{fmt.Sprintf(MsgInvalidLogin, data.IdentityLabel)}
		h.render(w, r, http.StatusOK, pageLogin, data)
		return
	case "AUTH_ACCOUNT_LOCKED":
		data.Form.NonField = []string{MsgLocked}
		h.render(w, r, http.StatusOK, pageLogin, data)
		return
	default:
		h.fail(w, r, "login failed", err)
		return
	}

	h.cookies.setSession(w, tok)
	http.Redirect(w, r, safeNext(data.Next, h.opts.LoginRedirect), http.StatusFound)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if session := currentSession(r); session != nil {
		if err := h.deps.Auth.Logout(r.Context(), session.ID); err != nil && errutil.Code(err) != "SESSION_NOT_FOUND" {
			h.fail(w, r, "logout failed", err)
			return
		}
	}
	h.cookies.clearSession(w)
	setSignedIn(r, nil, nil)
	h.flashRedirect(w, r, LevelSuccess, MsgLoggedOut, safeNext(nextParam(r), h.opts.LogoutRedirect))
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Change password")
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, pageChangePassword, data)
		return
	}

	err := h.deps.Auth.ChangePassword(r.Context(), CurrentAccount(r),
		r.PostFormValue(auth.FieldOldPassword),
		r.PostFormValue(auth.FieldNewPassword1),
		r.PostFormValue(auth.FieldNewPassword2),
	)
	if v, ok := account.AsValidationError(err); ok {
		data.Form = form{}.withValidation(v)
		h.render(w, r, http.StatusOK, pageChangePassword, data)
		return
	}
	if err != nil {
		h.fail(w, r, "password change failed", err)
		return
	}
	var keep ulid.ULID
	if session := currentSession(r); session != nil {
		keep = session.ID
	}
	if err := h.deps.Auth.RevokeSessions(r.Context(), CurrentAccount(r).ID, keep); err != nil {
		h.fail(w, r, "revoking other sessions failed", err)
		return
	}
	h.flashRedirect(w, r, LevelSuccess, MsgPasswordChanged, h.opts.LoginRedirect)
}
