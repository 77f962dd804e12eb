// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import "errors"

// ErrNotFound is returned when a requested account does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write would violate a uniqueness rule.
var ErrDuplicate = errors.New("duplicate")
