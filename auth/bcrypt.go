package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHashCost is the bcrypt work factor for every stored password.
const PasswordHashCost = 10

// dummyHash is compared against when a login names an unknown email so both
// paths pay for one bcrypt comparison.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("safebite-timing-equalizer"), PasswordHashCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

var errMismatchedHashAndPassword = errors.New("password does not match hash")

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if err != nil {
		return "", Internal(err, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// PasswordMatches never fails: a malformed stored hash is a mismatch.
func PasswordMatches(password, hash string) bool {
	return ComparePasswordAndHash(password, hash) == nil
}

// burnPasswordComparison spends the same work as a real comparison.
func burnPasswordComparison(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
