package profile

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/safebite/safebite-api/auth"
)

// UpdateProfileRequest keeps phone and age raw so an explicit null or empty
// string can be told apart from an absent key.
type UpdateProfileRequest struct {
	FullName *string         `json:"full_name"`
	Phone    json.RawMessage `json:"phone"`
	Age      json.RawMessage `json:"age"`
}

// ProfileUpdate is the decoded form of UpdateProfileRequest.
type ProfileUpdate struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Age      *int    `json:"age"`
	PhoneSet bool    `json:"-"`
	AgeSet   bool    `json:"-"`
}

// Columns lists the user columns the update touches.
func (u ProfileUpdate) Columns() []string {
	var cols []string
	if u.FullName != nil {
		cols = append(cols, "full_name")
	}
	if u.PhoneSet {
		cols = append(cols, "phone")
	}
	if u.AgeSet {
		cols = append(cols, "age")
	}
	return cols
}

// Apply copies the update onto user.
func (u ProfileUpdate) Apply(user *auth.User) {
	if u.FullName != nil {
		user.FullName = *u.FullName
	}
	if u.PhoneSet {
		user.Phone = u.Phone
	}
	if u.AgeSet {
		user.Age = u.Age
	}
}

// Decode validates the request and returns the update to apply.
func (r UpdateProfileRequest) Decode() (ProfileUpdate, error) {
	var out ProfileUpdate
	fields := map[string]string{}

	if r.FullName != nil {
		name := strings.TrimSpace(*r.FullName)
		out.FullName = &name
	}

	if len(r.Phone) > 0 {
		out.PhoneSet = true
		if !isNull(r.Phone) {
			var phone string
			if err := json.Unmarshal(r.Phone, &phone); err != nil {
				fields["phone"] = "must be a string"
			} else if phone = strings.TrimSpace(phone); phone != "" {
				out.Phone = &phone
			}
		}
	}

	if len(r.Age) > 0 {
		out.AgeSet = true
		if age, ok, err := decodeAge(r.Age); err != nil {
			fields["age"] = "must be an integer"
		} else if ok {
			out.Age = &age
		}
	}

	if len(fields) > 0 {
		return out, auth.ValidationError(fields)
	}

	if len(out.Columns()) == 0 {
		return out, auth.ValidationError(map[string]string{
			"body": "at least one field must be provided",
		})
	}

	if out.FullName != nil {
		if err := validation.Validate(*out.FullName, auth.FullNameRules()...); err != nil {
			fields["full_name"] = err.Error()
		}
	}
	if err := validation.Validate(out.Phone, auth.PhoneRules()...); err != nil {
		fields["phone"] = err.Error()
	}
	if err := validation.Validate(out.Age, auth.AgeRules()...); err != nil {
		fields["age"] = err.Error()
	}

	if len(fields) > 0 {
		return out, auth.ValidationError(fields)
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeAge accepts a JSON integer or a numeric string. null and "" clear.
func decodeAge(raw json.RawMessage) (int, bool, error) {
	if isNull(raw) {
		return 0, false, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
