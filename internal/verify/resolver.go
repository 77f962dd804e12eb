// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package verify

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/token"
)

// Lookup loads a subject by primary key. It returns an error wrapping
// account.ErrNotFound when no eligible subject exists.
type Lookup[S token.Subject] func(ctx context.Context, id int64) (S, error)

// Resolver maps a compact base-36 id to a subject.
type Resolver[S token.Subject] struct {
	lookup Lookup[S]
}

// NewResolver creates a Resolver backed by lookup.
func NewResolver[S token.Subject](lookup Lookup[S]) *Resolver[S] {
	return &Resolver[S]{lookup: lookup}
}

// Resolve decodes compactID and loads the subject. Decode failures, misses
// and lookup errors all return a non-nil error and the zero subject.
func (r *Resolver[S]) Resolve(ctx context.Context, compactID string) (S, error) {
	var zero S
	id, err := token.DecodeID(compactID)
	if err != nil {
		// %v rather than Wrap: oops reports the innermost code
		return zero, oops.Code(CodeDecodeFailed).With("compact_id", compactID).Errorf("decode compact id: %v", err)
	}
	if id <= 0 {
		return zero, oops.Code(CodeNotFound).With("id", id).Errorf("no subject with id %d", id)
	}

	subject, err := r.lookup(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return zero, oops.Code(CodeNotFound).With("id", id).Errorf("lookup subject: %v", err)
		}
		return zero, oops.Code(CodeLookupFailed).With("id", id).Errorf("lookup subject: %v", err)
	}
	return subject, nil
}
