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
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Job statuses reported by GET /progress.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	ProjectPath string `json:"project_path"`
}

// AnalyzeResponse is the body returned by POST /analyze.
//
// Older services name the id field project_id; either is accepted.
type AnalyzeResponse struct {
	JobID     string `json:"job_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ID returns job_id, falling back to project_id.
func (r AnalyzeResponse) ID() string {
	if id := strings.TrimSpace(r.JobID); id != "" {
		return id
	}
	return strings.TrimSpace(r.ProjectID)
}

// Progress is the body returned by GET /progress/{job_id}.
//
// Progress is -1 when the service reports an error.
type Progress struct {
	Status   string `json:"status" validate:"required,oneof=queued running completed error"`
	Progress int    `json:"progress" validate:"gte=-1,lte=100"`
	Message  string `json:"message"`
}

// Terminal reports whether the status ends the job.
func (p Progress) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusError
}

// ServiceConfig is the body returned by GET /config.
type ServiceConfig struct {
	Model           string   `json:"model" validate:"required"`
	AvailableModels []string `json:"available_models"`
	APIKeySet       bool     `json:"api_key_set"`
}

// SetModelRequest is the body of POST /config/model.
type SetModelRequest struct {
	Model string `json:"model" validate:"required,callscope_model"`
}

// SetModelResponse is the body returned by POST /config/model.
type SetModelResponse struct {
	Success bool   `json:"success"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errorBody is the {"error": "..."} shape the service uses for 4xx/5xx.
type errorBody struct {
	Error string `json:"error"`
}

// =============================================================================
// Validation
// =============================================================================

// wireValidate validates decoded service responses.
var wireValidate *validator.Validate

func init() {
	wireValidate = validator.New()

	// Report JSON field names so protocol errors match the wire.
	wireValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = wireValidate.RegisterValidation("callscope_model", func(fl validator.FieldLevel) bool {
		return Model(fl.Field().String()).Valid()
	})
}

// validateWire validates v and returns the first failing JSON field.
func validateWire(v any) (string, error) {
	err := wireValidate.Struct(v)
	if err == nil {
		return "", nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field(), err
	}
	return "body", err
}
