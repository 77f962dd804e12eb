// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// Form field names used in validation errors for new accounts.
const (
	FieldEmail     = "email"
	FieldUsername  = "username"
	FieldPassword1 = "password1"
	FieldPassword2 = "password2"
)

// User-facing duplicate messages.
const (
	MsgDuplicateEmail    = "A user with that email already exists."
	MsgDuplicateUsername = "A user with that username already exists."
)

// RegistrationInput is the raw input for a new account.
type RegistrationInput struct {
	Email     string
	Username  string
	Password1 string
	Password2 string
}

// Registration validates RegistrationInput and builds unsaved accounts.
type Registration struct {
	Accounts Repository
	Hasher   PasswordHasher
	Policy   PasswordPolicy
	Identity IdentityField
}

// Build validates in and returns an unsaved Account with a hashed password.
// Input problems are reported as a *ValidationError.
func (r Registration) Build(ctx context.Context, in RegistrationInput) (*Account, error) {
	v := &ValidationError{}
	email := NormalizeEmail(in.Email)

	if msg := ValidateEmail(email); msg != "" {
		v.Add(FieldEmail, msg)
	} else if taken, err := r.emailTaken(ctx, email); err != nil {
		return nil, err
	} else if taken {
		v.Add(FieldEmail, MsgDuplicateEmail)
	}

	switch {
	case in.Username == "" && r.Identity == IdentityUsername:
		v.Add(FieldUsername, "This field is required.")
	case in.Username != "":
		if err := ValidateUsername(in.Username); err != nil {
			v.Add(FieldUsername, err.Error())
		} else if taken, err := r.usernameTaken(ctx, in.Username); err != nil {
			return nil, err
		} else if taken {
			v.Add(FieldUsername, MsgDuplicateUsername)
		}
	}

	r.Policy.CheckPair(v, FieldPassword1, in.Password1, FieldPassword2, in.Password2)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	hash, err := r.Hasher.Hash(in.Password1)
	if err != nil {
		return nil, oops.Code("ACCOUNT_HASH_FAILED").With("operation", "hash password").Wrap(err)
	}
	return NewAccount(email, in.Username, hash)
}

// DuplicateError converts ErrDuplicate from a racing insert into the field
// error a form would have shown. Repositories name the violated field in the
// "field" context value. Other errors pass through.
func DuplicateError(err error) error {
	if !errors.Is(err, ErrDuplicate) {
		return err
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if field, _ := oopsErr.Context()["field"].(string); field == FieldUsername {
			return NewValidationError(FieldUsername, MsgDuplicateUsername)
		}
	}
	return NewValidationError(FieldEmail, MsgDuplicateEmail)
}

func (r Registration) emailTaken(ctx context.Context, email string) (bool, error) {
	return exists(r.Accounts.GetByEmail(ctx, email))
}

func (r Registration) usernameTaken(ctx context.Context, username string) (bool, error) {
	return exists(r.Accounts.GetByUsername(ctx, username))
}

func exists(_ *Account, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "check uniqueness").Wrap(err)
}
