// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web serves the account pages: registration, login and logout,
// password reset and change, and invitations.
//
// Token-guarded pages (password reset and invitation completion) run every
// request through a verify.Gate. An invalid link never renders or processes
// the form; it flashes a generic message and redirects to a fallback page.
package web

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/invite"
	"github.com/holomush/visitor/internal/verify"
	"github.com/holomush/visitor/pkg/errutil"
)

// User-facing messages.
const (
	MsgInvalidLink       = "This one-time use URL has already been used. Try to login or use the forgot password form."
	MsgRegistered        = "Successfully registered and logged in"
	MsgLoggedOut         = "Successfully logged out"
	MsgPasswordReset     = "Your password has been reset and you are now logged in."
	MsgPasswordChanged   = "Your password has been changed."
	MsgInvalidLogin      = "Please enter a correct %s and password. Note that both fields may be case-sensitive."
	MsgLocked            = "Too many failed login attempts. Please try again later."
	MsgInvitationSent    = "An invitation has been sent to %s."
	MsgInvitationResent  = "The invitation to %s has been sent again."
	MsgInvitationNotSent = "The invitation was saved but the email could not be sent. Use \"Resend invitation\" to try again."
)

// RequestRecorder receives one entry per handled request.
type RequestRecorder interface {
	RecordRequest(route string, code int)
}

// Deps groups the services behind the pages.
type Deps struct {
	Auth       *auth.Service
	Reset      *auth.PasswordResetService
	Invites    *invite.Service
	ResetGate  *verify.Gate[*account.Account]
	InviteGate *verify.Gate[*invite.InvitedAccount]
	Recorder   RequestRecorder
}

// Options configures routes and redirects.
type Options struct {
	// Prefix is prepended to every route, e.g. "/user". It may be empty.
	Prefix               string
	LoginURL             string
	LoginRedirect        string
	LogoutRedirect       string
	InvalidTokenRedirect string
	RegisterEnabled      bool
	Identity             account.IdentityField
	// SecureCookies marks cookies Secure regardless of the request scheme.
	SecureCookies bool
}

// Handler serves the account pages.
type Handler struct {
	deps    Deps
	opts    Options
	pages   *renderer
	cookies cookieJar
	logger  *slog.Logger
}

// New creates a Handler with a no-op logger.
func New(deps Deps, opts Options) (*Handler, error) {
	return NewWithLogger(deps, opts, slog.New(slog.DiscardHandler))
}

// NewWithLogger creates a Handler with the provided logger.
func NewWithLogger(deps Deps, opts Options, logger *slog.Logger) (*Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Errorf("auth service is required")
	case deps.Reset == nil:
		return nil, oops.Errorf("password reset service is required")
	case deps.Invites == nil:
		return nil, oops.Errorf("invitation service is required")
	case deps.ResetGate == nil || deps.InviteGate == nil:
		return nil, oops.Errorf("verification gates are required")
	case logger == nil:
		return nil, oops.Errorf("logger is required")
	}

	opts.Prefix = strings.TrimRight(opts.Prefix, "/")
	if opts.LoginURL == "" {
		opts.LoginURL = opts.Prefix + "/login/"
	}
	if opts.LoginRedirect == "" {
		opts.LoginRedirect = "/"
	}
	if opts.LogoutRedirect == "" {
		opts.LogoutRedirect = opts.LoginURL
	}
	if opts.InvalidTokenRedirect == "" {
		opts.InvalidTokenRedirect = opts.LoginURL
	}
	if opts.Identity == "" {
		opts.Identity = account.IdentityEmail
	}

	pages, err := newRenderer(templatesFS)
	if err != nil {
		return nil, err
	}
	return &Handler{
		deps:    deps,
		opts:    opts,
		pages:   pages,
		cookies: cookieJar{secure: opts.SecureCookies},
		logger:  logger,
	}, nil
}

// Routes returns the instrumented router.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	p := h.opts.Prefix

	if h.opts.RegisterEnabled {
		mux.HandleFunc("GET "+p+"/register/", h.register)
		mux.HandleFunc("POST "+p+"/register/", h.register)
	}
	mux.HandleFunc("GET "+p+"/login/", h.login)
	mux.HandleFunc("POST "+p+"/login/", h.login)
	mux.HandleFunc("GET "+p+"/logout/", h.logout)
	mux.HandleFunc("POST "+p+"/logout/", h.logout)
	mux.HandleFunc("GET "+p+"/forgot_password/", h.forgotPassword)
	mux.HandleFunc("POST "+p+"/forgot_password/", h.forgotPassword)
	mux.HandleFunc("GET "+p+"/forgot_password/check_email/", h.checkEmail)
	mux.HandleFunc("GET "+p+"/reset_password/{link}/", h.resetPassword)
	mux.HandleFunc("POST "+p+"/reset_password/{link}/", h.resetPassword)
	mux.Handle("GET "+p+"/change_password/", h.requireLogin(h.changePassword))
	mux.Handle("POST "+p+"/change_password/", h.requireLogin(h.changePassword))
	mux.Handle("GET "+p+"/invitation/", h.requireLogin(h.invitationStart))
	mux.Handle("POST "+p+"/invitation/", h.requireLogin(h.invitationStart))
	mux.HandleFunc("GET "+p+"/invitation/{link}/", h.invitationComplete)
	mux.HandleFunc("POST "+p+"/invitation/{link}/", h.invitationComplete)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.renderStatus(w, r, http.StatusNotFound)
	})

	return otelhttp.NewHandler(h.withSession(h.withMetrics(mux)), "visitor.web")
}

// withSession loads the signed-in account, if any, and the pending flash
// messages into the request state.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{}
		if c, err := r.Cookie(FlashCookie); err == nil {
			st.flashes = decodeFlashes(c.Value)
		}
		if tok, ok := readSession(r); ok {
			session, acct, err := h.deps.Auth.Authenticate(r.Context(), tok)
			switch {
			case err == nil:
				st.session, st.account = session, acct
			case isSessionRejection(err):
				h.cookies.clearSession(w)
			default:
				errutil.LogErrorContext(r.Context(), h.logger, "session lookup failed", err)
			}
		}
		next.ServeHTTP(w, withState(r, st))
	})
}

func isSessionRejection(err error) bool {
	switch errutil.Code(err) {
	case "SESSION_INVALID", "SESSION_NOT_FOUND", "SESSION_EXPIRED", "SESSION_TOKEN_EMPTY":
		return true
	}
	return false
}

// withMetrics counts requests by route pattern and status code. It must
// wrap the mux directly so the matched pattern is visible afterwards.
func (h *Handler) withMetrics(next http.Handler) http.Handler {
	if h.deps.Recorder == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		h.deps.Recorder.RecordRequest(route, m.Code)
	})
}

// requireLogin redirects anonymous requests to the login page with a next
// parameter pointing back at the requested path.
func (h *Handler) requireLogin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentAccount(r) == nil {
			http.Redirect(w, r, loginURLWithNext(h.opts.LoginURL, r.URL.RequestURI()), http.StatusFound)
			return
		}
		next(w, r)
	})
}

// page builds the common template data for r.
func (h *Handler) page(r *http.Request, title string) pageData {
	return pageData{
		Title:         title,
		Prefix:        h.opts.Prefix,
		Account:       CurrentAccount(r),
		IdentityLabel: identityLabel(h.opts.Identity),
	}
}

// render shows the page and consumes the pending flash messages.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	data.Status = status
	data.Account = CurrentAccount(r)
	data.Flashes = h.cookies.takeFlashes(w, r)
	if err := h.pages.render(w, status, name, data); err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, "render failed", err, "page", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) renderStatus(w http.ResponseWriter, r *http.Request, status int) {
	h.render(w, r, status, pageError, h.page(r, http.StatusText(status)))
}

// fail logs err and renders the generic error page.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	errutil.LogErrorContext(r.Context(), h.logger, msg, err, "path", r.URL.Path)
	h.renderStatus(w, r, http.StatusInternalServerError)
}

func (h *Handler) flashRedirect(w http.ResponseWriter, r *http.Request, level, msg, target string) {
	h.cookies.addFlash(w, r, Flash{Level: level, Message: msg})
	http.Redirect(w, r, target, http.StatusFound)
}

// rejectLink handles an invalid verification result.
func (h *Handler) rejectLink(w http.ResponseWriter, r *http.Request) {
	h.flashRedirect(w, r, LevelError, MsgInvalidLink, h.opts.InvalidTokenRedirect)
}

// signIn starts a session for acct and sets the session cookie.
func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, acct *account.Account) error {
	session, tok, err := h.deps.Auth.StartSession(r.Context(), acct, r.UserAgent(), clientIP(r))
	if err != nil {
		return err
	}
	h.cookies.setSession(w, tok)
	setSignedIn(r, session, acct)
	return nil
}

func identityLabel(field account.IdentityField) string {
	if field == account.IdentityUsername {
		return "Username"
	}
	return "Email"
}
