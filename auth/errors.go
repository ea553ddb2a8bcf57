package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "VALIDATION_FAILED"
	TextCodeInvalidBody        = "INVALID_REQUEST_BODY"
	TextCodeEmailTaken         = "EMAIL_ALREADY_REGISTERED"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenUnverifiable  = "TOKEN_UNVERIFIABLE"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeFlowTokenExpired   = "FLOW_TOKEN_EXPIRED"
	TextCodeAlreadyVerified    = "EMAIL_ALREADY_VERIFIED"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeMissingSigningKey  = "MISSING_SIGNING_KEY"
	TextCodeRouteNotFound      = "ROUTE_NOT_FOUND"
)

var (
	ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)

	ErrInvalidBody = goerrors.New("invalid request body", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidBody).
			WithCode(goerrors.CodeBadRequest)

	ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
			WithTextCode(TextCodeEmailTaken).
			WithCode(goerrors.CodeConflict)

	ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	// ErrTokenExpired is returned by the session token codec for a well
	// formed, correctly signed token past its expiry.
	ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeUnauthorized)

	// ErrTokenMalformed covers structural and signature failures.
	ErrTokenMalformed = goerrors.New("invalid token", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).
				WithCode(goerrors.CodeUnauthorized)

	// ErrTokenUnverifiable covers every other verification failure.
	ErrTokenUnverifiable = goerrors.New("token verification failed", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenUnverifiable).
				WithCode(goerrors.CodeUnauthorized)

	// ErrInvalidToken is returned when a verification or reset token does
	// not match any account.
	ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidToken).
			WithCode(goerrors.CodeBadRequest)

	// ErrFlowTokenExpired is returned when a verification or reset token is
	// found but past its expiry. The token has been cleared by then.
	ErrFlowTokenExpired = goerrors.New("token expired", goerrors.CategoryBadInput).
				WithTextCode(TextCodeFlowTokenExpired).
				WithCode(goerrors.CodeBadRequest)

	ErrAlreadyVerified = goerrors.New("email already verified", goerrors.CategoryConflict).
				WithTextCode(TextCodeAlreadyVerified).
				WithCode(goerrors.CodeConflict)

	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryAuth).
			WithTextCode(TextCodeUserNotFound).
			WithCode(goerrors.CodeUnauthorized)

	ErrEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
				WithTextCode(TextCodeEmptyPassword).
				WithCode(goerrors.CodeBadRequest)

	ErrMissingSigningKey = goerrors.New("signing key must not be empty", goerrors.CategoryInternal).
				WithTextCode(TextCodeMissingSigningKey).
				WithCode(goerrors.CodeInternal)

	ErrRouteNotFound = goerrors.New("route not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodeRouteNotFound).
				WithCode(goerrors.CodeNotFound)
)

// FieldError is a single field level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// fieldsError attaches field failures to a shared sentinel. The sentinel
// stays untouched and still matches under errors.Is.
type fieldsError struct {
	base   *goerrors.Error
	fields []FieldError
	source error
}

func (e *fieldsError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	msg := e.base.Message
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.source != nil {
		msg += ": " + e.source.Error()
	}
	return msg
}

func (e *fieldsError) Unwrap() []error {
	if e.source != nil {
		return []error{e.base, e.source}
	}
	return []error{e.base}
}

// WithFields returns an error matching base that carries fields.
func WithFields(base *goerrors.Error, source error, fields ...FieldError) error {
	return &fieldsError{
		base:   base,
		fields: append([]FieldError(nil), fields...),
		source: source,
	}
}

// FieldsOf returns the field failures carried by err, if any.
func FieldsOf(err error) []FieldError {
	var fe *fieldsError
	if errors.As(err, &fe) {
		return fe.fields
	}
	return nil
}

// ValidationError builds a validation error from a field to message map.
func ValidationError(fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]FieldError, 0, len(keys))
	for _, k := range keys {
		out = append(out, FieldError{Field: k, Message: fields[k]})
	}

	return WithFields(ErrValidation, nil, out...)
}

// withCause keeps sentinel matchable while recording what caused it.
func withCause(sentinel *goerrors.Error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Internal wraps an unexpected failure.
func Internal(source error, message string) error {
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal)
}

// RichError extracts the first categorized error in err's chain.
func RichError(err error) (*goerrors.Error, bool) {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return richErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a categorized error of category.
func IsCategory(err error, category goerrors.Category) bool {
	richErr, ok := RichError(err)
	return ok && richErr.Category == category
}
