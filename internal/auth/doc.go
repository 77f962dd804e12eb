// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides sign-in and password management on top of the
// account package.
//
// # Services
//
//   - Service - login, logout, web sessions, registration, password change
//   - PasswordResetService - reset email and reset completion
//
// Services are created with New*Service constructors that validate
// dependencies. Web sessions store only a SHA256 hash of the cookie token.
//
// Every successful sign-in stamps the account's last login time. Outstanding
// password reset tokens are derived from that timestamp, so signing in
// invalidates them.
package auth
