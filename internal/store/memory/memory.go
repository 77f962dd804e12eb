// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process implementation of every repository.
// It enforces the same uniqueness rules as the PostgreSQL schema and is
// meant for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
	"github.com/holomush/visitor/internal/auth"
	"github.com/holomush/visitor/internal/invite"
)

// Store holds all records behind one lock.
type Store struct {
	mu          sync.RWMutex
	accounts    map[int64]account.Account
	invitations map[int64]invite.InvitedAccount
	sessions    map[ulid.ULID]auth.WebSession
	nextAccount int64
	nextInvite  int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:    make(map[int64]account.Account),
		invitations: make(map[int64]invite.InvitedAccount),
		sessions:    make(map[ulid.ULID]auth.WebSession),
	}
}

// Accounts returns the account repository view.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Invitations returns the invitation repository view.
func (s *Store) Invitations() *InvitationRepository { return &InvitationRepository{s: s} }

// Sessions returns the web session repository view.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// Registrar returns the invitation registrar.
func (s *Store) Registrar() *Registrar { return &Registrar{s: s} }

func duplicate(field string) error {
	return oops.Code("ACCOUNT_DUPLICATE").With("field", field).Wrap(account.ErrDuplicate)
}

// insertAccount validates uniqueness and stores a. Caller holds the write lock.
func (s *Store) insertAccount(a *account.Account) error {
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return duplicate(account.FieldEmail)
		}
		if a.Username != "" && strings.EqualFold(existing.Username, a.Username) {
			return duplicate(account.FieldUsername)
		}
	}
	s.nextAccount++
	a.ID = s.nextAccount
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func cloneAccount(a *account.Account) account.Account {
	c := *a
	if a.LastLogin != nil {
		t := *a.LastLogin
		c.LastLogin = &t
	}
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	return c
}

func cloneInvitation(i *invite.InvitedAccount) invite.InvitedAccount {
	c := *i
	if i.CreatedAccountID != nil {
		id := *i.CreatedAccountID
		c.CreatedAccountID = &id
	}
	c.CreatedAccountLastLogin = nil
	return c
}

// AccountRepository implements account.Repository.
type AccountRepository struct{ s *Store }

var _ account.Repository = (*AccountRepository)(nil)

// Create stores a new account and assigns its ID.
func (r *AccountRepository) Create(_ context.Context, a *account.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertAccount(a)
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id int64) (*account.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, oops.With("id", id).Wrap(account.ErrNotFound)
	}
	c := cloneAccount(&a)
	return &c, nil
}

// GetByEmail retrieves an account by email, ignoring case.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	return r.find(func(a *account.Account) bool { return strings.EqualFold(a.Email, email) }, "email", email)
}

// GetByUsername retrieves an account by username, ignoring case.
func (r *AccountRepository) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	if username == "" {
		return nil, oops.With("username", username).Wrap(account.ErrNotFound)
	}
	return r.find(func(a *account.Account) bool { return strings.EqualFold(a.Username, username) }, "username", username)
}

func (r *AccountRepository) find(match func(*account.Account) bool, key, value string) (*account.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.accounts {
		if match(&a) {
			c := cloneAccount(&a)
			return &c, nil
		}
	}
	return nil, oops.With(key, value).Wrap(account.ErrNotFound)
}

// Update replaces an existing account.
func (r *AccountRepository) Update(_ context.Context, a *account.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; !ok {
		return oops.With("id", a.ID).Wrap(account.ErrNotFound)
	}
	for id, existing := range r.s.accounts {
		if id == a.ID {
			continue
		}
		if strings.EqualFold(existing.Email, a.Email) {
			return duplicate(account.FieldEmail)
		}
		if a.Username != "" && strings.EqualFold(existing.Username, a.Username) {
			return duplicate(account.FieldUsername)
		}
	}
	a.UpdatedAt = time.Now()
	r.s.accounts[a.ID] = cloneAccount(a)
	return nil
}

// UpdatePassword replaces only the password hash.
func (r *AccountRepository) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return oops.With("id", id).Wrap(account.ErrNotFound)
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now()
	r.s.accounts[id] = a
	return nil
}

// ReplacePasswordHash swaps the hash only if it still equals oldHash.
func (r *AccountRepository) ReplacePasswordHash(_ context.Context, id int64, oldHash, newHash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return false, oops.With("id", id).Wrap(account.ErrNotFound)
	}
	if a.PasswordHash != oldHash {
		return false, nil
	}
	a.PasswordHash = newHash
	a.UpdatedAt = time.Now()
	r.s.accounts[id] = a
	return true, nil
}

// RecordLoginFailure counts a failed login on the stored account.
func (r *AccountRepository) RecordLoginFailure(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return oops.With("id", id).Wrap(account.ErrNotFound)
	}
	a.RecordFailure()
	r.s.accounts[id] = a
	return nil
}

// RecordLogin stamps the login time on the stored account.
func (r *AccountRepository) RecordLogin(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return oops.With("id", id).Wrap(account.ErrNotFound)
	}
	a.RecordSuccess(at)
	r.s.accounts[id] = a
	return nil
}

// InvitationRepository implements invite.Repository.
type InvitationRepository struct{ s *Store }

var _ invite.Repository = (*InvitationRepository)(nil)

// Create stores a new invitation and assigns its ID.
func (r *InvitationRepository) Create(_ context.Context, inv *invite.InvitedAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.invitations {
		if strings.EqualFold(existing.Email, inv.Email) {
			return oops.Code("INVITE_DUPLICATE").With("field", account.FieldEmail).Wrap(account.ErrDuplicate)
		}
	}
	r.s.nextInvite++
	inv.ID = r.s.nextInvite
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	r.s.invitations[inv.ID] = cloneInvitation(inv)
	return nil
}

// GetByID retrieves an invitation with its created account's last login.
func (r *InvitationRepository) GetByID(_ context.Context, id int64) (*invite.InvitedAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inv, ok := r.s.invitations[id]
	if !ok {
		return nil, oops.With("id", id).Wrap(account.ErrNotFound)
	}
	return r.s.hydrate(inv), nil
}

// GetByEmail retrieves an invitation by email, ignoring case.
func (r *InvitationRepository) GetByEmail(_ context.Context, email string) (*invite.InvitedAccount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, inv := range r.s.invitations {
		if strings.EqualFold(inv.Email, email) {
			return r.s.hydrate(inv), nil
		}
	}
	return nil, oops.With("email", email).Wrap(account.ErrNotFound)
}

// hydrate copies inv and joins the created account's last login.
// Caller holds at least the read lock.
func (s *Store) hydrate(inv invite.InvitedAccount) *invite.InvitedAccount {
	c := cloneInvitation(&inv)
	if c.CreatedAccountID != nil {
		if a, ok := s.accounts[*c.CreatedAccountID]; ok && a.LastLogin != nil {
			t := *a.LastLogin
			c.CreatedAccountLastLogin = &t
		}
	}
	return &c
}

// Registrar implements invite.Registrar.
type Registrar struct{ s *Store }

var _ invite.Registrar = (*Registrar)(nil)

// CompleteRegistration creates acct and marks inv registered under one lock.
func (r *Registrar) CompleteRegistration(_ context.Context, inv *invite.InvitedAccount, acct *account.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.invitations[inv.ID]
	if !ok {
		return oops.With("invitation_id", inv.ID).Wrap(account.ErrNotFound)
	}
	if stored.Status != invite.StatusInvited {
		return oops.Code("INVITE_ALREADY_REGISTERED").
			With("invitation_id", inv.ID).
			Errorf("invitation already registered")
	}
	if err := r.s.insertAccount(acct); err != nil {
		return err
	}
	id := acct.ID
	stored.Status = invite.StatusRegistered
	stored.CreatedAccountID = &id
	stored.UpdatedAt = time.Now()
	r.s.invitations[inv.ID] = stored
	return nil
}

// SessionRepository implements auth.WebSessionRepository.
type SessionRepository struct{ s *Store }

var _ auth.WebSessionRepository = (*SessionRepository)(nil)

// Create stores a new web session.
func (r *SessionRepository) Create(_ context.Context, session *auth.WebSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[session.ID] = *session
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.WebSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, session := range r.s.sessions {
		if session.TokenHash == tokenHash {
			c := session
			return &c, nil
		}
	}
	return nil, auth.ErrSessionNotFound
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	session, ok := r.s.sessions[id]
	if !ok {
		return oops.With("session_id", id.String()).Wrap(auth.ErrSessionNotFound)
	}
	session.LastSeenAt = lastSeen
	r.s.sessions[id] = session
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[id]; !ok {
		return oops.With("session_id", id.String()).Wrap(auth.ErrSessionNotFound)
	}
	delete(r.s.sessions, id)
	return nil
}

// DeleteByAccount removes the sessions of an account other than keep.
func (r *SessionRepository) DeleteByAccount(_ context.Context, accountID int64, keep ulid.ULID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, session := range r.s.sessions {
		if session.AccountID == accountID && id != keep {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes all expired sessions.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	var n int64
	for id, session := range r.s.sessions {
		if session.IsExpiredAt(now) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}
