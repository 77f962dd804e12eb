// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/mail"
	"github.com/holomush/visitor/pkg/errutil"
)

// forgotPassword always ends on the check-email page for a well-formed
// address, whether or not an account exists.
func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Forgot password")
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, pageForgotPassword, data)
		return
	}

	data.Form = formFrom(r, account.FieldEmail)
	email := account.NormalizeEmail(r.PostFormValue(account.FieldEmail))
	if msg := account.ValidateEmail(email); msg != "" {
		data.Form = data.Form.withValidation(account.NewValidationError(account.FieldEmail, msg))
		h.render(w, r, http.StatusOK, pageForgotPassword, data)
		return
	}

	err := h.deps.Reset.RequestReset(r.Context(), email, mail.Site{})
	switch {
	case err == nil:
	case errutil.Code(err) == "RESET_SEND_FAILED":
		// Reporting this would reveal that the address has an account.
		errutil.LogErrorContext(r.Context(), h.logger, "password reset email failed", err)
	default:
		h.fail(w, r, "password reset request failed", err)
		return
	}
	http.Redirect(w, r, h.opts.Prefix+"/forgot_password/check_email/", http.StatusFound)
}

func (h *Handler) checkEmail(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageCheckEmail, h.page(r, "Check your email"))
}

// resetPassword is guarded by the reset gate on every request. A
// successful reset signs the account in, which also moves its last login
// and so retires the link.
func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	res := h.deps.ResetGate.CheckLink(r.Context(), r.PathValue("link"))
	if !res.Valid {
		h.rejectLink(w, r)
		return
	}

	data := h.page(r, "Reset password")
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, pageResetPassword, data)
		return
	}

	acct := res.Subject
	err := h.deps.Reset.ResetPassword(r.Context(), acct,
		r.PostFormValue(auth.FieldNewPassword1),
		r.PostFormValue(auth.FieldNewPassword2),
	)
	if v, ok := account.AsValidationError(err); ok {
		data.Form = form{}.withValidation(v)
		h.render(w, r, http.StatusOK, pageResetPassword, data)
		return
	}
	if err != nil {
		h.fail(w, r, "password reset failed", err)
		return
	}
	if err := h.deps.Auth.RevokeSessions(r.Context(), acct.ID, ulid.ULID{}); err != nil {
		h.fail(w, r, "revoking sessions after reset failed", err)
		return
	}

	if err := h.signIn(w, r, acct); err != nil {
		h.fail(w, r, "sign in after password reset failed", err)
		return
	}
	h.flashRedirect(w, r, LevelSuccess, MsgPasswordReset, h.opts.LoginRedirect)
}
