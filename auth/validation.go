package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

const DefaultPhoneRegion = "BR"

var phoneRegion atomic.Value

func init() {
	phoneRegion.Store(DefaultPhoneRegion)
}

// SetPhoneRegion sets the region used to parse phone numbers written without
// a country prefix.
func SetPhoneRegion(region string) {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultPhoneRegion
	}
	phoneRegion.Store(region)
}

// ValidatePhoneNumber accepts empty values and anything phonenumbers can
// parse.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if p, ok := value.(*string); ok && p != nil {
		s = *p
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := phonenumbers.Parse(s, phoneRegion.Load().(string)); err != nil {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// NormalizeValidationError turns ozzo errors into a categorized validation
// error. Anything else passes through.
func NormalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if errors.As(err, &errs) {
		fields := make(map[string]string, len(errs))
		for field, fieldErr := range errs {
			if fieldErr != nil {
				fields[field] = fieldErr.Error()
			}
		}
		return ValidationError(fields)
	}

	var internal validation.InternalError
	if errors.As(err, &internal) {
		return Internal(err, "validation failed to run")
	}

	return err
}

// MaxPasswordBytes is the longest input bcrypt hashes.
const MaxPasswordBytes = 72

// ValidatePasswordBytes rejects passwords bcrypt would refuse to hash.
func ValidatePasswordBytes(value any) error {
	s, _ := value.(string)
	if len(s) > MaxPasswordBytes {
		return fmt.Errorf("must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

var (
	fullNameRules = []validation.Rule{validation.Required, validation.Length(2, 255)}
	emailRules    = []validation.Rule{validation.Required, is.Email}
	passwordRules = []validation.Rule{validation.Required, validation.Length(6, 100), validation.By(ValidatePasswordBytes)}
	phoneRules    = []validation.Rule{validation.Length(0, 20), validation.By(ValidatePhoneNumber)}
	ageRules      = []validation.Rule{validation.Min(0), validation.Max(150)}
)

// FullNameRules, PhoneRules and AgeRules are shared with the profile payloads.
func FullNameRules() []validation.Rule { return fullNameRules }
func PhoneRules() []validation.Rule    { return phoneRules }
func AgeRules() []validation.Rule      { return ageRules }

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Age      *int   `json:"age"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return NormalizeValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.FullName, fullNameRules...),
		validation.Field(&r.Email, emailRules...),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.Phone, phoneRules...),
		validation.Field(&r.Age, ageRules...),
	))
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return NormalizeValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules...),
		validation.Field(&r.Password, validation.Required),
	))
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error {
	return NormalizeValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	))
}

// EmailRequest is the body of forgot-password and send-verification-email.
type EmailRequest struct {
	Email string `json:"email"`
}

func (r EmailRequest) Validate() error {
	return NormalizeValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Email, emailRules...),
	))
}

// TokenRequest is the body of verify-reset-token and verify-email.
type TokenRequest struct {
	Token string `json:"token"`
}

func (r TokenRequest) Validate() error {
	return NormalizeValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	))
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() error {
	return NormalizeValidationError(validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, passwordRules...),
	))
}
