// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "fmt"

// DefaultPasswordMinLength is the minimum password length when none is configured.
const DefaultPasswordMinLength = 8

// PasswordPolicy holds the rules a new password must satisfy.
type PasswordPolicy struct {
	MinLength int
}

// DefaultPasswordPolicy returns the policy used when nothing is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: DefaultPasswordMinLength}
}

func (p PasswordPolicy) minLength() int {
	if p.MinLength <= 0 {
		return DefaultPasswordMinLength
	}
	return p.MinLength
}

// Check returns a user-facing message when password breaks the policy, or "".
func (p PasswordPolicy) Check(password string) string {
	if len(password) < p.minLength() {
		return fmt.Sprintf("Password must be at least %d characters long.", p.minLength())
	}
	return ""
}

// CheckPair validates a password entered twice, recording problems on v
// under firstField and secondField.
func (p PasswordPolicy) CheckPair(v *ValidationError, firstField, first, secondField, second string) {
	if first == "" {
		v.Add(firstField, "This field is required.")
	} else if msg := p.Check(first); msg != "" {
		v.Add(firstField, msg)
	}
	if second == "" {
		v.Add(secondField, "This field is required.")
		return
	}
	if first != second {
		v.Add(secondField, "The two password fields didn't match.")
	}
}
