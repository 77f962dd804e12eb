// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package token

import (
	"regexp"
	"strings"
)

// LinkExpr matches the "<uid>-<token>" path segment of a verification URL.
const LinkExpr = `([0-9A-Za-z]{1,13})-([0-9A-Za-z]{1,13}-[0-9A-Za-z]{1,20})`

// LinkPattern matches a whole "<uid>-<token>" segment.
var LinkPattern = regexp.MustCompile(`^` + LinkExpr + `$`)

// ParseLink splits a "<uid>-<token>" segment. ok is false when the segment
// does not have the verification URL shape.
func ParseLink(segment string) (uid, tok string, ok bool) {
	m := LinkPattern.FindStringSubmatch(strings.Trim(segment, "/"))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FormatLink builds "<prefix>/<uid>-<token>/".
func FormatLink(prefix string, id int64, tok string) string {
	return strings.TrimRight(prefix, "/") + "/" + EncodeID(id) + "-" + tok + "/"
}
