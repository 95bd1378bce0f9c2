package validation

import (
	"encoding/base64"
	"strings"
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/logvault/internal/errors"
)

func TestUUID(t *testing.T) {
	assert.NoError(t, UUID.Validate("0190a6d4-7b7e-7c3e-9c1a-2d2f0f0b6a11"))
	assert.NoError(t, UUID.Validate(""))
	assert.Error(t, UUID.Validate("not-a-uuid"))
}

func TestUserID(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{name: "valid user id", input: "alice", shouldErr: false},
		{name: "email style", input: "alice@acme.io", shouldErr: false},
		{name: "empty defers to required", input: "", shouldErr: false},
		{name: "contains slash", input: "a/b", shouldErr: true},
		{name: "contains space", input: "a b", shouldErr: true},
		{name: "too long", input: strings.Repeat("u", 256), shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := UserID.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBase64Len(t *testing.T) {
	rule := Base64Len(32)

	assert.NoError(t, rule.Validate(base64.StdEncoding.EncodeToString(make([]byte, 32))))
	assert.NoError(t, rule.Validate(""))
	assert.Error(t, rule.Validate(base64.StdEncoding.EncodeToString(make([]byte, 16))))
	assert.Error(t, rule.Validate("%%%"))
}

func TestSearchToken(t *testing.T) {
	assert.NoError(t, SearchToken.Validate(base64.RawURLEncoding.EncodeToString(make([]byte, 32))))
	assert.Error(t, SearchToken.Validate(base64.RawURLEncoding.EncodeToString(make([]byte, 8))))
	assert.Error(t, SearchToken.Validate("not a token"))
}

func TestBase64(t *testing.T) {
	assert.NoError(t, Base64.Validate("aGVsbG8="))
	assert.NoError(t, Base64.Validate(""))
	assert.Error(t, Base64.Validate("not base64!"))
	assert.Error(t, Base64.Validate(42))
}


type retentionRequest struct {
	LogName string
	Period  string
}

func (r retentionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LogName, validation.Required, NotBlank, NoWhitespace),
		validation.Field(&r.Period, validation.Required, NotBlank),
	)
}

func TestStringRules(t *testing.T) {
	t.Run("Success_PlainLogName", func(t *testing.T) {
		assert.NoError(t, retentionRequest{LogName: "auth service", Period: "720h"}.Validate())
	})

	for name, logName := range map[string]string{
		"Error_LeadingSpace":  " sys",
		"Error_TrailingTab":   "sys\t",
		"Error_OnlyNewlines":  "\n\n",
		"Error_MixedBlank":    " \t\n ",
		"Error_EmptyRequired": "",
	} {
		t.Run(name, func(t *testing.T) {
			err := retentionRequest{LogName: logName, Period: "720h"}.Validate()

			var errs validation.Errors
			require.ErrorAs(t, err, &errs)
			assert.Contains(t, errs, "LogName")
		})
	}
}

func TestWrapValidationError(t *testing.T) {
	t.Run("Success_Nil", func(t *testing.T) {
		assert.NoError(t, WrapValidationError(nil))
	})

	t.Run("Success_MapsToInvalidInput", func(t *testing.T) {
		err := WrapValidationError(retentionRequest{LogName: "sys"}.Validate())

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Contains(t, err.Error(), "Period: cannot be blank")
	})
}
