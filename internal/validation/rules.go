// Package validation provides custom validation rules for request DTOs.
package validation

import (
	"strings"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/logvault/internal/errors"
)

// maxUserIDLength matches the user_id column width.
const maxUserIDLength = 255

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that a string has no leading or trailing whitespace.
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) == s
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace.
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// UUID validates that a string parses as a UUID.
var UUID = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := uuid.Parse(s)
		return err == nil
	},
	validation.NewError("validation_uuid", "must be a valid UUID"),
)

// UserID validates a user identifier as stored in grants and tokens.
var UserID = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_user_id_type", "must be a string")
	}
	if s == "" {
		return nil
	}
	if len(s) > maxUserIDLength {
		return validation.NewError("validation_user_id_length", "must be at most 255 characters")
	}
	if strings.TrimSpace(s) != s || strings.ContainsAny(s, "/ ") {
		return validation.NewError("validation_user_id_format", "must not contain spaces or slashes")
	}
	return nil
})
