// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"errors"
	"testing"
)

func TestNormalizeProjectPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/repo", "/repo"},
		{"whitespace", "  /repo \n", "/repo"},
		{"single quotes", "'/home/me/my repo'", "/home/me/my repo"},
		{"double quotes", `"/home/me/my repo"`, "/home/me/my repo"},
		{"escaped spaces", `/home/me/my\ repo`, "/home/me/my repo"},
		{"file url", "file:///home/me/my%20repo/", "/home/me/my repo"},
		{"trailing slash", "/repo/", "/repo"},
		{"root", "/", "/"},
		{"relative", "./src", "./src"},
		{"mismatched quotes kept", `'/repo"`, `'/repo"`},
		{"trailing backslash kept", `/repo\`, `/repo\`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeProjectPath(tt.in)
			if err != nil {
				t.Fatalf("NormalizeProjectPath(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeProjectPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeProjectPath_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\t\n", "''", `"  "`} {
		if _, err := NormalizeProjectPath(in); !errors.Is(err, ErrEmptyPath) {
			t.Errorf("NormalizeProjectPath(%q) error = %v, want ErrEmptyPath", in, err)
		}
	}
}
