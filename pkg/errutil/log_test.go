// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/visitor/pkg/errutil"
)

func decodeLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestCode(t *testing.T) {
	assert.Equal(t, "VERIFY_TOKEN_MISMATCH", errutil.Code(oops.Code("VERIFY_TOKEN_MISMATCH").Errorf("x")))
	assert.Empty(t, errutil.Code(oops.Errorf("no code")))
	assert.Empty(t, errutil.Code(errors.New("plain")))
}

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("INVITE_SEND_FAILED").
		With("invitation_id", 4).
		Errorf("relay refused")

	errutil.LogError(logger, "invitation failed", err)

	entry := decodeLog(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "invitation failed", entry["msg"])
	assert.Equal(t, "INVITE_SEND_FAILED", entry["code"])
	assert.Contains(t, entry["context"], "invitation_id")
}

func TestLogErrorContext_StandardErrorWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogErrorContext(context.Background(), logger, "request failed", errors.New("standard error"), "route", "login")

	entry := decodeLog(t, &buf)
	assert.Equal(t, "standard error", entry["error"])
	assert.Equal(t, "login", entry["route"])
	assert.NotContains(t, entry, "code")
}
