package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// MaxPasswordLength is the bcrypt input limit in bytes.
const MaxPasswordLength = 72

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
	// dummy is compared against when the account does not exist so that
	// unknown emails take as long as wrong passwords.
	dummy []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("clinic-dummy-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt dummy hash: %v", err))
	}
	return &PasswordHasher{cost: cost, dummy: dummy}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches hash. A mismatch is (false, nil).
func (h *PasswordHasher) Verify(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("verify password: %w", err)
	}
	return true, nil
}

// VerifyDummy burns one bcrypt comparison and always reports false.
func (h *PasswordHasher) VerifyDummy(password string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
	return false
}

// commonPasswords is a short deny list of the most frequently leaked passwords.
var commonPasswords = map[string]bool{
	"password": true, "password1": true, "password123": true, "passw0rd": true,
	"12345678": true, "123456789": true, "1234567890": true, "87654321": true,
	"qwerty123": true, "qwertyuiop": true, "iloveyou": true, "sunshine": true,
	"princess": true, "football": true, "baseball": true, "welcome1": true,
	"abc12345": true, "letmein1": true, "trustno1": true, "superman": true,
	"11111111": true, "00000000": true, "admin123": true, "changeme": true,
	"starwars": true, "whatever": true, "dragon12": true, "monkey12": true,
}

// CheckPasswordStrength returns a human readable reason when password is too
// weak, or "" when it is acceptable. email and name are the account's own
// attributes which the password must not resemble.
func CheckPasswordStrength(password, email, name string) string {
	if len(password) < MinPasswordLength {
		return fmt.Sprintf("password must contain at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength)
	}
	allDigits := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return "password cannot be entirely numeric"
	}
	lower := strings.ToLower(password)
	if commonPasswords[lower] {
		return "password is too common"
	}

	local := strings.ToLower(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	for _, attr := range []string{local, strings.ToLower(strings.TrimSpace(name))} {
		if len(attr) < 3 {
			continue
		}
		if strings.Contains(lower, attr) || strings.Contains(attr, lower) {
			return "password is too similar to your personal information"
		}
	}
	return ""
}
