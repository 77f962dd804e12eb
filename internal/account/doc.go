// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package account defines the user account domain for visitor.
//
// # Domain Types
//
// Accounts should be created with NewAccount, which validates the identity
// fields and requires a password hash. Direct struct initialization bypasses
// validation and is reserved for repository implementations that load
// already-persisted rows.
//
// # Deferred Writes
//
// Flows that validate input before persisting it return a PreparedWrite.
// Nothing is stored until PreparedWrite.Apply is called, so callers can run
// further checks (or discard the write) between the two phases.
package account
