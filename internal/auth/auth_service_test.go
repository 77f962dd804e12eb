// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/store/memory"
	"github.com/holomush/visitor/pkg/errutil"
)

func TestNewAuthService_NilDependencies(t *testing.T) {
	store := memory.New()
	hasher := account.NewArgon2idHasherWithParams(fastParams)

	tests := []struct {
		name        string
		accounts    account.Repository
		sessions    auth.WebSessionRepository
		hasher      account.PasswordHasher
		expectError string
	}{
		{"nil accounts repository", nil, store.Sessions(), hasher, "account repository is required"},
		{"nil sessions repository", store.Accounts(), nil, hasher, "session repository is required"},
		{"nil password hasher", store.Accounts(), store.Sessions(), nil, "password hasher is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewAuthService(tt.accounts, tt.sessions, tt.hasher, auth.Config{})
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}

	t.Run("nil logger", func(t *testing.T) {
		svc, err := auth.NewAuthServiceWithLogger(store.Accounts(), store.Sessions(), hasher, auth.Config{}, nil)
		require.Error(t, err)
		assert.Nil(t, svc)
	})

	t.Run("unknown identity field", func(t *testing.T) {
		_, err := auth.NewAuthService(store.Accounts(), store.Sessions(), hasher, auth.Config{Identity: "phone"})
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login creates session and stamps last login", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		acct := f.addAccount(t, "alice@example.com", "", "correct horse")

		session, token, err := f.svc.Login(ctx, "alice@example.com", "correct horse", "agent", "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, session.AccountID)
		assert.True(t, auth.VerifySessionToken(token, session.TokenHash))

		stored, err := f.store.Accounts().GetByID(ctx, acct.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastLogin)
		assert.Equal(t, 1, f.logins.count(auth.LoginSucceeded))
	})

	t.Run("email lookup normalizes the domain", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		f.addAccount(t, "alice@example.com", "", "correct horse")

		_, _, err := f.svc.Login(ctx, "alice@EXAMPLE.com", "correct horse", "", "")
		require.NoError(t, err)
	})

	t.Run("username identity", func(t *testing.T) {
		f := newFixture(t, auth.Config{Identity: account.IdentityUsername})
		f.addAccount(t, "alice@example.com", "alice", "correct horse")

		_, _, err := f.svc.Login(ctx, "alice", "correct horse", "", "")
		require.NoError(t, err)

		_, _, err = f.svc.Login(ctx, "alice@example.com", "correct horse", "", "")
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("unknown account and wrong password fail identically", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		f.addAccount(t, "alice@example.com", "", "correct horse")

		_, _, unknownErr := f.svc.Login(ctx, "nobody@example.com", "correct horse", "", "")
		_, _, wrongErr := f.svc.Login(ctx, "alice@example.com", "wrong", "", "")

		errutil.AssertErrorCode(t, unknownErr, "AUTH_INVALID_CREDENTIALS")
		errutil.AssertErrorCode(t, wrongErr, "AUTH_INVALID_CREDENTIALS")
		assert.Equal(t, unknownErr.Error(), wrongErr.Error())
		assert.Equal(t, 2, f.logins.count(auth.LoginFailed))
	})

	t.Run("inactive account is rejected", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		acct := f.addAccount(t, "alice@example.com", "", "correct horse")
		acct.IsActive = false
		require.NoError(t, f.store.Accounts().Update(ctx, acct))

		_, _, err := f.svc.Login(ctx, "alice@example.com", "correct horse", "", "")
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	})

	t.Run("locks after repeated failures", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		f.addAccount(t, "alice@example.com", "", "correct horse")

		for range account.LockoutThreshold {
			_, _, err := f.svc.Login(ctx, "alice@example.com", "wrong", "", "")
			require.Error(t, err)
		}

		_, _, err := f.svc.Login(ctx, "alice@example.com", "correct horse", "", "")
		errutil.AssertErrorCode(t, err, "AUTH_ACCOUNT_LOCKED")
		assert.Equal(t, 1, f.logins.count(auth.LoginLocked))
	})

	t.Run("upgrades hash with outdated parameters", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		old := account.NewArgon2idHasherWithParams(account.Argon2Params{Time: 2, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
		hash, err := old.Hash("correct horse")
		require.NoError(t, err)
		acct, err := account.NewAccount("alice@example.com", "", hash)
		require.NoError(t, err)
		require.NoError(t, f.store.Accounts().Create(ctx, acct))

		_, _, err = f.svc.Login(ctx, "alice@example.com", "correct horse", "", "")
		require.NoError(t, err)

		stored, err := f.store.Accounts().GetByID(ctx, acct.ID)
		require.NoError(t, err)
		assert.NotEqual(t, hash, stored.PasswordHash)
		assert.False(t, f.hasher.NeedsUpgrade(stored.PasswordHash))
	})
}

func TestAuthService_LoginLogsUpdateFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := memory.New()
	hasher := account.NewArgon2idHasherWithParams(fastParams)
	accounts := &failingUpdates{AccountRepository: store.Accounts()}
	svc, err := auth.NewAuthServiceWithLogger(accounts, store.Sessions(), hasher, auth.Config{}, logger)
	require.NoError(t, err)

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	acct, err := account.NewAccount("alice@example.com", "", hash)
	require.NoError(t, err)
	require.NoError(t, store.Accounts().Create(context.Background(), acct))

	_, _, err = svc.Login(context.Background(), "alice@example.com", "wrong", "", "")
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	assert.Contains(t, buf.String(), "failed to record login failure")
}

type failingUpdates struct {
	*memory.AccountRepository
}

func (f *failingUpdates) RecordLoginFailure(context.Context, int64) error {
	return assert.AnError
}

// resetDuringLogin commits a password change right after the first email
// lookup, before Login writes anything back.
type resetDuringLogin struct {
	*memory.AccountRepository
	newHash string
	done    bool
}

func (r *resetDuringLogin) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	acct, err := r.AccountRepository.GetByEmail(ctx, email)
	if err != nil || r.done {
		return acct, err
	}
	r.done = true
	if err := r.UpdatePassword(ctx, acct.ID, r.newHash); err != nil {
		return nil, err
	}
	return acct, nil
}

func TestAuthService_LoginKeepsConcurrentPasswordChange(t *testing.T) {
	ctx := context.Background()
	hasher := account.NewArgon2idHasherWithParams(fastParams)
	newHash, err := hasher.Hash("after reset")
	require.NoError(t, err)
	outdated := account.NewArgon2idHasherWithParams(account.Argon2Params{Time: 2, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})

	tests := []struct {
		name     string
		hasher   account.PasswordHasher
		password string
		wantErr  string
	}{
		{name: "failed attempt", hasher: hasher, password: "wrong", wantErr: "AUTH_INVALID_CREDENTIALS"},
		{name: "successful login on the stale row", hasher: hasher, password: "correct horse"},
		{name: "rehash on the stale row", hasher: outdated, password: "correct horse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			oldHash, err := tt.hasher.Hash("correct horse")
			require.NoError(t, err)
			acct, err := account.NewAccount("alice@example.com", "", oldHash)
			require.NoError(t, err)
			require.NoError(t, store.Accounts().Create(ctx, acct))

			accounts := &resetDuringLogin{AccountRepository: store.Accounts(), newHash: newHash}
			svc, err := auth.NewAuthService(accounts, store.Sessions(), hasher, auth.Config{})
			require.NoError(t, err)

			_, _, err = svc.Login(ctx, "alice@example.com", tt.password, "", "")
			if tt.wantErr != "" {
				errutil.AssertErrorCode(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			stored, err := store.Accounts().GetByID(ctx, acct.ID)
			require.NoError(t, err)
			assert.Equal(t, newHash, stored.PasswordHash)

			_, _, err = svc.Login(ctx, "alice@example.com", "correct horse", "", "")
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
			_, _, err = svc.Login(ctx, "alice@example.com", "after reset", "", "")
			require.NoError(t, err)
		})
	}
}

func TestAuthService_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.Config{})
	acct := f.addAccount(t, "alice@example.com", "", "correct horse")

	session, token, err := f.svc.Login(ctx, "alice@example.com", "correct horse", "", "")
	require.NoError(t, err)

	gotSession, gotAccount, err := f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, gotSession.ID)
	assert.Equal(t, acct.ID, gotAccount.ID)

	require.NoError(t, f.svc.Logout(ctx, session.ID))

	_, _, err = f.svc.Authenticate(ctx, token)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")

	err = f.svc.Logout(ctx, session.ID)
	errutil.AssertErrorCode(t, err, "SESSION_NOT_FOUND")
}

func TestAuthService_RevokeSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.Config{})
	acct := f.addAccount(t, "alice@example.com", "", "correct horse")
	other := f.addAccount(t, "bob@example.com", "", "correct horse")

	current, currentToken, err := f.svc.Login(ctx, "alice@example.com", "correct horse", "", "")
	require.NoError(t, err)
	_, staleToken, err := f.svc.Login(ctx, "alice@example.com", "correct horse", "", "")
	require.NoError(t, err)
	_, bobToken, err := f.svc.Login(ctx, "bob@example.com", "correct horse", "", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeSessions(ctx, acct.ID, current.ID))
	_, err = f.svc.ValidateSession(ctx, currentToken)
	require.NoError(t, err)
	_, err = f.svc.ValidateSession(ctx, staleToken)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")

	require.NoError(t, f.svc.RevokeSessions(ctx, acct.ID, ulid.ULID{}))
	_, err = f.svc.ValidateSession(ctx, currentToken)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")

	_, err = f.svc.ValidateSession(ctx, bobToken)
	require.NoError(t, err, "account %d keeps its session", other.ID)
}

func TestAuthService_ValidateSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.Config{})

	_, err := f.svc.ValidateSession(ctx, "")
	errutil.AssertErrorCode(t, err, "SESSION_TOKEN_EMPTY")

	token, hash, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	expired, err := auth.NewWebSession(1, hash, "", "", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, f.store.Sessions().Create(ctx, expired))

	_, err = f.svc.ValidateSession(ctx, token)
	errutil.AssertErrorCode(t, err, "SESSION_EXPIRED")
}

func TestAuthService_AuthenticateInactiveAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, auth.Config{})
	acct := f.addAccount(t, "alice@example.com", "", "correct horse")
	_, token, err := f.svc.StartSession(ctx, acct, "", "")
	require.NoError(t, err)

	acct.IsActive = false
	require.NoError(t, f.store.Accounts().Update(ctx, acct))

	_, _, err = f.svc.Authenticate(ctx, token)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID")
}

func TestAuthService_PrepareRegistration(t *testing.T) {
	ctx := context.Background()

	t.Run("valid input creates account only when applied", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		write, err := f.svc.PrepareRegistration(ctx, account.RegistrationInput{
			Email:     "new@example.com",
			Password1: "long enough",
			Password2: "long enough",
		})
		require.NoError(t, err)

		_, err = f.store.Accounts().GetByEmail(ctx, "new@example.com")
		require.ErrorIs(t, err, account.ErrNotFound)

		acct, err := write.Apply(ctx)
		require.NoError(t, err)
		assert.NotZero(t, acct.ID)
		assert.True(t, write.Applied())
	})

	t.Run("field errors", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		f.addAccount(t, "taken@example.com", "", "correct horse")

		_, err := f.svc.PrepareRegistration(ctx, account.RegistrationInput{
			Email:     "taken@example.com",
			Password1: "short",
			Password2: "other",
		})
		verr, ok := account.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, []string{account.MsgDuplicateEmail}, verr.Fields[account.FieldEmail])
		assert.True(t, verr.Has(account.FieldPassword1))
		assert.True(t, verr.Has(account.FieldPassword2))
	})

	t.Run("duplicate created between prepare and apply", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		write, err := f.svc.PrepareRegistration(ctx, account.RegistrationInput{
			Email:     "race@example.com",
			Password1: "long enough",
			Password2: "long enough",
		})
		require.NoError(t, err)
		f.addAccount(t, "race@example.com", "", "correct horse")

		_, err = write.Apply(ctx)
		verr, ok := account.AsValidationError(err)
		require.True(t, ok)
		assert.True(t, verr.Has(account.FieldEmail))
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong old password", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		acct := f.addAccount(t, "alice@example.com", "", "correct horse")

		err := f.svc.ChangePassword(ctx, acct, "wrong", "new password", "new password")
		verr, ok := account.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, []string{auth.MsgOldPasswordIncorrect}, verr.Fields[auth.FieldOldPassword])
	})

	t.Run("mismatched new passwords", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		acct := f.addAccount(t, "alice@example.com", "", "correct horse")

		err := f.svc.ChangePassword(ctx, acct, "correct horse", "new password", "different")
		verr, ok := account.AsValidationError(err)
		require.True(t, ok)
		assert.True(t, verr.Has(auth.FieldNewPassword2))
		assert.False(t, verr.Has(auth.FieldOldPassword))
	})

	t.Run("success stores the new hash", func(t *testing.T) {
		f := newFixture(t, auth.Config{})
		acct := f.addAccount(t, "alice@example.com", "", "correct horse")

		require.NoError(t, f.svc.ChangePassword(ctx, acct, "correct horse", "new password", "new password"))

		_, _, err := f.svc.Login(ctx, "alice@example.com", "new password", "", "")
		require.NoError(t, err)
	})
}
