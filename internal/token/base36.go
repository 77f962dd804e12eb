// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package token

import (
	"strconv"

	"github.com/samber/oops"
)

// MaxBase36Length bounds encoded values; 13 base-36 digits cover int64.
const MaxBase36Length = 13

// EncodeID returns the compact base-36 form of an account or invitation ID.
func EncodeID(id int64) string {
	return strconv.FormatInt(id, 36)
}

// DecodeID parses a compact base-36 ID. Empty, oversized, signed,
// non-alphanumeric and overflowing input is rejected.
func DecodeID(s string) (int64, error) {
	if s == "" {
		return 0, oops.Code("TOKEN_DECODE_FAILED").Errorf("empty base36 value")
	}
	if len(s) > MaxBase36Length {
		return 0, oops.Code("TOKEN_DECODE_FAILED").
			With("length", len(s)).
			Errorf("base36 value longer than %d characters", MaxBase36Length)
	}
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) {
			return 0, oops.Code("TOKEN_DECODE_FAILED").Errorf("invalid base36 character %q", s[i])
		}
	}
	n, err := strconv.ParseInt(s, 36, 64)
	if err != nil {
		return 0, oops.Code("TOKEN_DECODE_FAILED").Wrap(err)
	}
	return n, nil
}

func isAlnum(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
