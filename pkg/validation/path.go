// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation normalizes user-provided input before it reaches
// the analysis service.
//
// Terminals paste a dragged-in directory in several shapes depending on
// the emulator: wrapped in quotes, with backslash-escaped spaces, or as
// a file:// URL. NormalizeProjectPath folds all of them into a plain
// path.
package validation

import (
	"errors"
	"net/url"
	"strings"
)

// ErrEmptyPath is returned when the input is empty after trimming.
var ErrEmptyPath = errors.New("project path is empty")

// NormalizeProjectPath turns a typed or dropped path into a plain path.
//
// # Description
//
// Steps, in order:
//  1. Trim surrounding whitespace (including a trailing newline from a
//     paste).
//  2. Strip one pair of matching surrounding quotes.
//  3. Decode a file:// URL into its path.
//  4. Unescape backslash-escaped characters ("my\ dir" -> "my dir").
//  5. Drop a trailing separator, except for the root "/".
//
// # Inputs
//
//   - raw: The text from the path field.
//
// # Outputs
//
//   - string: The normalized path.
//   - error: ErrEmptyPath if nothing is left.
//
// # Example
//
//	p, err := validation.NormalizeProjectPath("'/home/me/my repo/'")
//	// p == "/home/me/my repo"
//
// # Limitations
//
// The path is not checked for existence; the service decides whether it
// can read it.
func NormalizeProjectPath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = stripQuotes(p)
	p = strings.TrimSpace(p)

	if strings.HasPrefix(p, "file://") {
		if u, err := url.Parse(p); err == nil && u.Path != "" {
			p = u.Path
		}
	} else {
		p = unescapeBackslashes(p)
	}

	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}

	if p == "" {
		return "", ErrEmptyPath
	}
	return p, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func unescapeBackslashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		b.WriteRune('\\')
	}
	return b.String()
}
