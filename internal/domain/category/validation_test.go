package category

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "taxonomy-backend/internal/errors"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "Cameras", true},
		{"with digits and spaces", "Category 10", true},
		{"max length", strings.Repeat("a", MaxNameLength), true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"too long", strings.Repeat("a", MaxNameLength+1), false},
		{"leading space", " Cameras", false},
		{"trailing tab", "Cameras\t", false},
		{"slash", "a/b", false},
		{"backslash", `a\b`, false},
		{"semicolon", "a;b", false},
		{"comma", "a,b", false},
		{"pipe", "a|b", false},
		{"control", "a\x01b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := ValidateName(tt.input)
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestValidate_Entities(t *testing.T) {
	require.NoError(t, Validate(Scope{ID: "s", Name: "Production"}))
	require.NoError(t, Validate(Category{ID: "c", Name: "Routers", Scope: "s"}))
	require.NoError(t, Validate(CategoryItem{ID: "i", Category: "c", ModuleID: "elements", InstanceID: "1/2"}))

	err := Validate(Scope{ID: "s", Name: " padded"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "start or end with whitespace")

	err = Validate(CategoryItem{ID: "i", Category: "c"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
