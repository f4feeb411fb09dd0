package validator

import (
	"errors"
	"testing"

	"fp-innova/internal/models"
)

func TestValidateStruct(t *testing.T) {
	type TestStruct struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Name     string `json:"name" validate:"required,notblank"`
		Role     string `json:"role" validate:"omitempty,role"`
	}

	tests := []struct {
		name      string
		input     TestStruct
		wantField string
	}{
		{
			name:  "valid struct",
			input: TestStruct{Email: "test@example.com", Password: "password123", Name: "Ana", Role: "reviewer"},
		},
		{
			name:      "blank name",
			input:     TestStruct{Email: "test@example.com", Password: "password123", Name: "   "},
			wantField: "name",
		},
		{
			name:      "invalid email",
			input:     TestStruct{Email: "invalid-email", Password: "password123", Name: "Ana"},
			wantField: "email",
		},
		{
			name:      "password too short",
			input:     TestStruct{Email: "test@example.com", Password: "short", Name: "Ana"},
			wantField: "password",
		},
		{
			name:      "unknown role",
			input:     TestStruct{Email: "test@example.com", Password: "password123", Name: "Ana", Role: "root"},
			wantField: "role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verrs Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected Errors, got %v", err)
			}
			if msg, ok := verrs[tt.wantField]; !ok || msg == "" {
				t.Errorf("expected message for %q, got %v", tt.wantField, verrs)
			}
		})
	}
}

func TestNestedFieldPathsUseJSONNames(t *testing.T) {
	s := models.DefaultSystemSettings()
	s.Appearance.Colors.Primary = "blue"
	s.Views.DisplayOptions.ItemsPerPage = 0

	err := ValidateStruct(&s)
	var verrs Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected Errors, got %v", err)
	}
	for _, field := range []string{"appearance.colors.primary", "views.displayOptions.itemsPerPage"} {
		if _, ok := verrs[field]; !ok {
			t.Errorf("missing error for %s in %v", field, verrs)
		}
	}
}

func TestDefaultSettingsAreValid(t *testing.T) {
	s := models.DefaultSystemSettings()
	if err := ValidateStruct(&s); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
}

func TestProjectStatusTag(t *testing.T) {
	if err := ValidateVar("needs_changes", "project_status"); err != nil {
		t.Errorf("needs_changes rejected: %v", err)
	}
	if err := ValidateVar("archived", "project_status"); err == nil {
		t.Error("archived accepted as project status")
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := SanitizeEmail("  Ana@Example.COM\x00 "); got != "ana@example.com" {
		t.Errorf("SanitizeEmail() = %q", got)
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword(""); err == nil {
		t.Error("empty password accepted")
	}
	if err := ValidatePassword("1234567"); err == nil {
		t.Error("short password accepted")
	}
	if err := ValidatePassword("12345678"); err != nil {
		t.Errorf("valid password rejected: %v", err)
	}
}
