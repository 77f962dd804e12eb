// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrSessionNotFound indicates the requested web session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Login outcome labels reported to a LoginRecorder.
const (
	LoginSucceeded = "success"
	LoginFailed    = "invalid_credentials"
	LoginLocked    = "locked"
	LoginError     = "error"
)
