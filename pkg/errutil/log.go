// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for oops-coded errors.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops code attached to err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok || oopsErr.Code() == nil {
		return ""
	}
	return fmt.Sprint(oopsErr.Code())
}

// LogError logs err at error level. For oops errors the code and context
// are logged as separate attributes.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext is LogError with a context for trace correlation.
// Extra attrs are appended after the error attributes.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if c := oopsErr.Context(); len(c) > 0 {
			fields = append(fields, "context", c)
		}
	}
	logger.ErrorContext(ctx, msg, append(fields, attrs...)...)
}
