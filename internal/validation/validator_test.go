// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

package validation

import (
	"strings"
	"testing"
)

type rankingParams struct {
	Limit  int    `validate:"min=1,max=100"`
	Window int    `validate:"min=0"`
	Status string `validate:"omitempty,oneof=draft published archived deleted"`
}

func TestValidateStructPass(t *testing.T) {
	if err := ValidateStruct(&rankingParams{Limit: 10, Status: "published"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}

func TestValidateStructSingleError(t *testing.T) {
	err := ValidateStruct(&rankingParams{Limit: 500})
	if err == nil {
		t.Fatal("out-of-range limit accepted")
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Details["field"] != "Limit" {
		t.Errorf("details field = %v, want Limit", apiErr.Details["field"])
	}
	if !strings.Contains(apiErr.Message, "at most 100") {
		t.Errorf("message %q should mention the bound", apiErr.Message)
	}
}

func TestValidateStructMultipleErrors(t *testing.T) {
	err := ValidateStruct(&rankingParams{Limit: 0, Status: "bogus"})
	if err == nil {
		t.Fatal("invalid params accepted")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("got %d errors, want 2", len(err.Errors()))
	}

	apiErr := err.ToAPIError()
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("multi-error details should list fields")
	}
	if !strings.Contains(apiErr.Message, "one of") {
		t.Errorf("message %q should mention the allowed set", apiErr.Message)
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator must return the same instance")
	}
}
