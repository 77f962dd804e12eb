// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"errors"
	"sort"
	"strings"
)

// ValidationError collects user-facing messages keyed by input field name.
// It is returned for bad form input and is never a fatal error.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add records a message for field.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], message)
}

// Has reports whether field has at least one message.
func (v *ValidationError) Has(field string) bool {
	return v != nil && len(v.Fields[field]) > 0
}

// Empty reports whether no messages were recorded.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// Error renders the messages in field order.
func (v *ValidationError) Error() string {
	if v.Empty() {
		return "validation failed"
	}
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(v.Fields[name], "; "))
	}
	return strings.Join(parts, ", ")
}

// OrNil returns v as an error, or nil when it holds no messages.
func (v *ValidationError) OrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

// AsValidationError extracts a ValidationError from an error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
