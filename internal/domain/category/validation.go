package category

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "taxonomy-backend/internal/errors"
)

const (
	// MaxNameLength is the longest allowed entity name, in characters.
	MaxNameLength = 100

	nameTag         = "categoryname"
	forbiddenInName = `/\;,|`
)

// ValidateName checks an entity name and returns a human readable reason
// when it is rejected.
func ValidateName(name string) (string, bool) {
	if strings.TrimSpace(name) == "" {
		return "Name cannot be whitespace or empty.", false
	}
	if n := utf8.RuneCountInString(name); n < 1 || n > MaxNameLength {
		return fmt.Sprintf("Name must be between 1 and %d characters long.", MaxNameLength), false
	}
	first, _ := utf8.DecodeRuneInString(name)
	last, _ := utf8.DecodeLastRuneInString(name)
	if unicode.IsSpace(first) || unicode.IsSpace(last) {
		return "Name cannot start or end with whitespace.", false
	}
	for _, r := range name {
		if unicode.IsControl(r) || strings.ContainsRune(forbiddenInName, r) {
			return "Name contains invalid or special characters.", false
		}
	}
	return "", true
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared struct validator with the entity name rule
// registered under the "categoryname" tag.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation(nameTag, func(fl validator.FieldLevel) bool {
			_, ok := ValidateName(fl.Field().String())
			return ok
		})
	})
	return validate
}

// Validate checks the struct tags of a Scope, Category or CategoryItem and
// converts failures to a VALIDATION error.
func Validate(entity any) error {
	err := Validator().Struct(entity)
	if err == nil {
		return nil
	}

	var details []string
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			if fe.Tag() == nameTag {
				reason, _ := ValidateName(fmt.Sprint(fe.Value()))
				details = append(details, fmt.Sprintf("%s: %s", fe.Field(), reason))
				continue
			}
			details = append(details, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
		}
	} else {
		details = append(details, err.Error())
	}

	return apperrors.Validation("INVALID_ENTITY", fmt.Sprintf("invalid %T", entity)).
		WithDetails(strings.Join(details, "; ")).
		Build()
}
