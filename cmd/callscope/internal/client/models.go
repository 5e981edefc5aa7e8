// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModel is returned for a model name outside the supported set.
var ErrUnknownModel = errors.New("unknown model")

// Model is the closed set of description models the service can use.
type Model string

const (
	ModelClaudeHaiku  Model = "anthropic/claude-3-5-haiku-20241022"
	ModelGPT4oMini    Model = "openai/gpt-4o-mini"
	ModelDeepSeekChat Model = "deepseek/deepseek-chat"
	ModelQwenCoder    Model = "qwen/qwen-2.5-coder-32b-instruct"
	ModelGeminiFlash  Model = "google/gemini-flash-1.5"
	ModelMiniMaxM2    Model = "minimax/minimax-m2"
)

// DefaultModel is the model a fresh service starts with.
const DefaultModel = ModelMiniMaxM2

// Models lists every supported model in display order.
var Models = []Model{
	ModelClaudeHaiku,
	ModelGPT4oMini,
	ModelDeepSeekChat,
	ModelQwenCoder,
	ModelGeminiFlash,
	ModelMiniMaxM2,
}

// Valid reports whether m is a supported model.
func (m Model) Valid() bool {
	switch m {
	case ModelClaudeHaiku, ModelGPT4oMini, ModelDeepSeekChat, ModelQwenCoder, ModelGeminiFlash, ModelMiniMaxM2:
		return true
	default:
		return false
	}
}

// Provider returns the part before the slash ("openai").
func (m Model) Provider() string {
	provider, _, _ := strings.Cut(string(m), "/")
	return provider
}

// ParseModel accepts a full model id or its unique short name
// ("gpt-4o-mini", "minimax-m2").
func ParseModel(s string) (Model, error) {
	s = strings.TrimSpace(s)
	if m := Model(s); m.Valid() {
		return m, nil
	}
	for _, m := range Models {
		_, short, _ := strings.Cut(string(m), "/")
		if strings.EqualFold(short, s) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// ModelNames returns the ids of every supported model.
func ModelNames() []string {
	names := make([]string, len(Models))
	for i, m := range Models {
		names[i] = string(m)
	}
	return names
}
