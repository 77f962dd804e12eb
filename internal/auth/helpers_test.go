// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/store/memory"
)

// fastParams keeps argon2 cheap in tests.
var fastParams = account.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

type fixture struct {
	store  *memory.Store
	hasher *account.Argon2idHasher
	svc    *auth.Service
	logins *loginCounter
}

func newFixture(t *testing.T, cfg auth.Config) *fixture {
	t.Helper()
	store := memory.New()
	hasher := account.NewArgon2idHasherWithParams(fastParams)
	logins := &loginCounter{counts: map[string]int{}}
	svc, err := auth.NewAuthService(store.Accounts(), store.Sessions(), hasher, cfg)
	require.NoError(t, err)
	return &fixture{store: store, hasher: hasher, svc: svc.WithRecorder(logins), logins: logins}
}

func (f *fixture) addAccount(t *testing.T, email, username, password string) *account.Account {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	acct, err := account.NewAccount(email, username, hash)
	require.NoError(t, err)
	require.NoError(t, f.store.Accounts().Create(context.Background(), acct))
	return acct
}

type loginCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *loginCounter) RecordLogin(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[status]++
}

func (c *loginCounter) count(status string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[status]
}
