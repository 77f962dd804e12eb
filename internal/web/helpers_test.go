// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/app"
	"github.com/holomush/visitor/internal/config"
	"github.com/holomush/visitor/internal/mail"
	"github.com/holomush/visitor/internal/observability"
	"github.com/holomush/visitor/internal/store/memory"
	"github.com/holomush/visitor/internal/web"
)

const (
	testPassword = "plum-orchard-42"
	newPassword  = "silver-lantern-77"
)

var fastHasher = account.NewArgon2idHasherWithParams(account.Argon2Params{
	Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32,
})

type harness struct {
	t       *testing.T
	app     *app.App
	outbox  *mail.Outbox
	relay   *switchableRelay
	metrics *observability.Metrics
	mem     *memory.Store
	routes  http.Handler
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Secrets.SecretKey = "web-test-secret"
	cfg.Site.BaseURL = "http://visitor.test"
	for _, m := range mutate {
		m(&cfg)
	}

	outbox := mail.NewOutbox()
	relay := &switchableRelay{next: outbox}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	mem := memory.New()
	a, err := app.New(&cfg, app.MemoryStores(mem), relay, app.Options{
		Hasher:  fastHasher,
		Metrics: metrics,
	})
	require.NoError(t, err)

	return &harness{t: t, app: a, outbox: outbox, relay: relay, metrics: metrics, mem: mem, routes: a.Handler.Routes()}
}

// switchableRelay delivers to next unless down is set.
type switchableRelay struct {
	next mail.Transport
	down atomic.Bool
}

func (r *switchableRelay) Deliver(ctx context.Context, msg *mail.Message) error {
	if r.down.Load() {
		return errors.New("relay unavailable")
	}
	return r.next.Deliver(ctx, msg)
}

// seedAccount registers an account directly through the service.
func (h *harness) seedAccount(email string) *account.Account {
	h.t.Helper()
	ctx := context.Background()
	write, err := h.app.Auth.PrepareRegistration(ctx, account.RegistrationInput{
		Email:     email,
		Password1: testPassword,
		Password2: testPassword,
	})
	require.NoError(h.t, err)
	acct, err := write.Apply(ctx)
	require.NoError(h.t, err)
	return acct
}

// browser carries cookies between requests and never follows redirects.
type browser struct {
	h       *harness
	cookies map[string]*http.Cookie
}

func (h *harness) browser() *browser {
	return &browser{h: h, cookies: map[string]*http.Cookie{}}
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.h.routes.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) signedIn() bool {
	_, ok := b.cookies[web.SessionCookie]
	return ok
}

func (b *browser) login(email, password string) *httptest.ResponseRecorder {
	return b.post("/user/login/", url.Values{"username": {email}, "password": {password}})
}

// lastLinkPath returns the path of the link in the most recent email.
func (h *harness) lastLinkPath() string {
	h.t.Helper()
	msg := h.outbox.Last()
	require.NotNil(h.t, msg, "no email was sent")
	u, err := url.Parse(msg.Data.TokenURL)
	require.NoError(h.t, err)
	return u.Path
}
