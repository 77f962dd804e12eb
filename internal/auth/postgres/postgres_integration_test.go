// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/auth/postgres"
)

var _ = Describe("AccountRepository", func() {
	var repo *postgres.AccountRepository

	BeforeEach(func() {
		repo = postgres.NewAccountRepository(testDB.Pool)
	})

	create := func(ctx SpecContext, email, username string) *account.Account {
		a, err := account.NewAccount(email, username, "$argon2id$hash")
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, a)).To(Succeed())
		return a
	}

	It("round trips an account", func(ctx SpecContext) {
		a := create(ctx, "alice@example.com", "alice")
		Expect(a.ID).To(BeNumerically(">", 0))

		got, err := repo.GetByID(ctx, a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Email).To(Equal("alice@example.com"))
		Expect(got.Username).To(Equal("alice"))
		Expect(got.IsActive).To(BeTrue())
		Expect(got.LastLogin).To(BeNil())
	})

	It("finds accounts case-insensitively", func(ctx SpecContext) {
		a := create(ctx, "bob@example.com", "Bob")

		byEmail, err := repo.GetByEmail(ctx, "BOB@example.COM")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(a.ID))

		byName, err := repo.GetByUsername(ctx, "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(byName.ID).To(Equal(a.ID))
	})

	It("allows several accounts without a username", func(ctx SpecContext) {
		create(ctx, "one@example.com", "")
		create(ctx, "two@example.com", "")
	})

	It("reports which field collided", func(ctx SpecContext) {
		create(ctx, "carol@example.com", "carol")

		dup, err := account.NewAccount("CAROL@example.com", "someone", "h")
		Expect(err).NotTo(HaveOccurred())
		err = repo.Create(ctx, dup)
		Expect(err).To(MatchError(account.ErrDuplicate))
		oopsErr, _ := oops.AsOops(err)
		Expect(oopsErr.Context()).To(HaveKeyWithValue("field", account.FieldEmail))

		dup, err = account.NewAccount("other@example.com", "CAROL", "h")
		Expect(err).NotTo(HaveOccurred())
		err = repo.Create(ctx, dup)
		Expect(err).To(MatchError(account.ErrDuplicate))
		oopsErr, _ = oops.AsOops(err)
		Expect(oopsErr.Context()).To(HaveKeyWithValue("field", account.FieldUsername))
	})

	It("persists login state and passwords", func(ctx SpecContext) {
		a := create(ctx, "dave@example.com", "")
		login := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
		a.LastLogin = &login
		a.FailedAttempts = 2
		Expect(repo.Update(ctx, a)).To(Succeed())
		Expect(repo.UpdatePassword(ctx, a.ID, "new-hash")).To(Succeed())

		got, err := repo.GetByID(ctx, a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.LastLogin).NotTo(BeNil())
		Expect(got.LastLogin.Equal(login)).To(BeTrue())
		Expect(got.FailedAttempts).To(Equal(2))
		Expect(got.PasswordHash).To(Equal("new-hash"))
	})

	It("records login state without touching the password", func(ctx SpecContext) {
		a := create(ctx, "erin@example.com", "")
		Expect(repo.UpdatePassword(ctx, a.ID, "after-reset")).To(Succeed())

		for range account.LockoutThreshold {
			Expect(repo.RecordLoginFailure(ctx, a.ID)).To(Succeed())
		}
		got, err := repo.GetByID(ctx, a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedAttempts).To(Equal(account.LockoutThreshold))
		Expect(got.IsLocked()).To(BeTrue())
		Expect(got.PasswordHash).To(Equal("after-reset"))

		login := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
		Expect(repo.RecordLogin(ctx, a.ID, login)).To(Succeed())
		got, err = repo.GetByID(ctx, a.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedAttempts).To(BeZero())
		Expect(got.LockedUntil).To(BeNil())
		Expect(got.LastLogin.Equal(login)).To(BeTrue())
		Expect(got.PasswordHash).To(Equal("after-reset"))

		swapped, err := repo.ReplacePasswordHash(ctx, a.ID, a.PasswordHash, "stale-rehash")
		Expect(err).NotTo(HaveOccurred())
		Expect(swapped).To(BeFalse())
	})

	It("returns ErrNotFound for missing rows", func(ctx SpecContext) {
		_, err := repo.GetByID(ctx, 999)
		Expect(err).To(MatchError(account.ErrNotFound))
		Expect(repo.UpdatePassword(ctx, 999, "x")).To(MatchError(account.ErrNotFound))
	})
})

var _ = Describe("WebSessionRepository", func() {
	var (
		repo *postgres.WebSessionRepository
		acct *account.Account
	)

	BeforeEach(func(ctx SpecContext) {
		repo = postgres.NewWebSessionRepository(testDB.Pool)
		var err error
		acct, err = account.NewAccount("sess@example.com", "", "h")
		Expect(err).NotTo(HaveOccurred())
		Expect(postgres.NewAccountRepository(testDB.Pool).Create(ctx, acct)).To(Succeed())
	})

	newSession := func(ctx SpecContext, expires time.Time) *auth.WebSession {
		s, err := auth.NewWebSession(acct.ID, ulid.Make().String(), "ua", "203.0.113.9", expires)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, s)).To(Succeed())
		return s
	}

	It("stores and looks up by token hash", func(ctx SpecContext) {
		s := newSession(ctx, time.Now().Add(time.Hour))

		got, err := repo.GetByTokenHash(ctx, s.TokenHash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(s.ID))
		Expect(got.AccountID).To(Equal(acct.ID))
		Expect(got.IPAddress).To(Equal("203.0.113.9"))
	})

	It("deletes single, per-account and expired sessions", func(ctx SpecContext) {
		live := newSession(ctx, time.Now().Add(time.Hour))
		newSession(ctx, time.Now().Add(-time.Minute))

		n, err := repo.DeleteExpired(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))

		Expect(repo.UpdateLastSeen(ctx, live.ID, time.Now())).To(Succeed())
		Expect(repo.Delete(ctx, live.ID)).To(Succeed())
		Expect(repo.Delete(ctx, live.ID)).To(MatchError(auth.ErrSessionNotFound))

		kept := newSession(ctx, time.Now().Add(time.Hour))
		other := newSession(ctx, time.Now().Add(time.Hour))
		n, err = repo.DeleteByAccount(ctx, acct.ID, kept.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
		_, err = repo.GetByTokenHash(ctx, other.TokenHash)
		Expect(err).To(MatchError(auth.ErrSessionNotFound))
		_, err = repo.GetByTokenHash(ctx, kept.TokenHash)
		Expect(err).NotTo(HaveOccurred())
	})
})
