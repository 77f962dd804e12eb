// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"

	"github.com/samber/oops"
)

// PreparedWrite is a validated value whose persistence has been deferred.
// Apply runs the write exactly once.
type PreparedWrite[T any] struct {
	value   T
	apply   func(ctx context.Context, value T) error
	applied bool
}

// Prepare wraps value with the function that will persist it.
func Prepare[T any](value T, apply func(ctx context.Context, value T) error) *PreparedWrite[T] {
	return &PreparedWrite[T]{value: value, apply: apply}
}

// Value returns the prepared value without persisting it.
func (p *PreparedWrite[T]) Value() T {
	return p.value
}

// Applied reports whether Apply has succeeded.
func (p *PreparedWrite[T]) Applied() bool {
	return p.applied
}

// Apply persists the value. A failed Apply may be retried; a successful one
// may not.
func (p *PreparedWrite[T]) Apply(ctx context.Context) (T, error) {
	if p.applied {
		return p.value, oops.Code("ACCOUNT_WRITE_APPLIED").Errorf("prepared write already applied")
	}
	if p.apply != nil {
		if err := p.apply(ctx, p.value); err != nil {
			return p.value, err
		}
	}
	p.applied = true
	return p.value, nil
}
