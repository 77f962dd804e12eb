// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"fmt"
	"net/http"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/pkg/errutil"
)

// fieldResend names the submit button that re-sends a pending invitation.
const fieldResend = "resend"

func (h *Handler) invitationStart(w http.ResponseWriter, r *http.Request) {
	data := h.page(r, "Invite someone")
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, pageInvitationStart, data)
		return
	}

	data.Form = formFrom(r, account.FieldEmail)
	issue, done := h.deps.Invites.Issue, MsgInvitationSent
	if r.PostFormValue(fieldResend) != "" {
		issue, done = h.deps.Invites.Resend, MsgInvitationResent
	}
	inv, err := issue(r.Context(), r.PostFormValue(account.FieldEmail))
	if v, ok := account.AsValidationError(err); ok {
		data.Form = data.Form.withValidation(v)
		h.render(w, r, http.StatusOK, pageInvitationStart, data)
		return
	}
	if err != nil && inv != nil && errutil.Code(err) == "INVITE_SEND_FAILED" {
		errutil.LogErrorContext(r.Context(), h.logger, "invitation email failed", err, "invitation_id", inv.ID)
		data.Form.NonField = []string{MsgInvitationNotSent}
		h.render(w, r, http.StatusOK, pageInvitationStart, data)
		return
	}
	if err != nil {
		h.fail(w, r, "invitation failed", err)
		return
	}

	h.flashRedirect(w, r, LevelSuccess, fmt.Sprintf(done, inv.Email), h.opts.Prefix+"/invitation/")
}

// invitationComplete is guarded by the invitation gate on every request.
// Completing registration flips the invitation to registered, after which
// the link no longer resolves.
func (h *Handler) invitationComplete(w http.ResponseWriter, r *http.Request) {
	res := h.deps.InviteGate.CheckLink(r.Context(), r.PathValue("link"))
	if !res.Valid {
		h.rejectLink(w, r)
		return
	}
	inv := res.Subject

	data := h.page(r, "Complete registration")
	data.Email = inv.Email
	if r.Method == http.MethodGet {
		h.render(w, r, http.StatusOK, pageInvitationComplete, data)
		return
	}

	data.Form = formFrom(r, account.FieldUsername)
	write, err := h.deps.Invites.PrepareCompletion(r.Context(), inv, account.RegistrationInput{
		Username:  r.PostFormValue(account.FieldUsername),
		Password1: r.PostFormValue(account.FieldPassword1),
		Password2: r.PostFormValue(account.FieldPassword2),
	})
	if err == nil {
		_, err = write.Apply(r.Context())
	}
	if v, ok := account.AsValidationError(err); ok {
		data.Form = data.Form.withValidation(v)
		h.render(w, r, http.StatusOK, pageInvitationComplete, data)
		return
	}
	if errutil.Code(err) == "INVITE_ALREADY_REGISTERED" {
		// Another request completed the invitation first.
		h.rejectLink(w, r)
		return
	}
	if err != nil {
		h.fail(w, r, "invitation completion failed", err)
		return
	}

	if err := h.signIn(w, r, write.Value()); err != nil {
		h.fail(w, r, "sign in after invitation failed", err)
		return
	}
	h.flashRedirect(w, r, LevelSuccess, MsgRegistered, h.opts.LoginRedirect)
}
