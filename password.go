package sealkv

import "strings"

const (
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
	specialChars   = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// PasswordPolicy describes the complexity requirements enforced on
// storage and backup passwords.
type PasswordPolicy struct {
	MinLength       int
	MinSpecialChars int
	MinUppercase    int
	MinDigits       int
}

// DefaultPasswordPolicy returns the policy applied when none is
// configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:       12,
		MinSpecialChars: 3,
		MinUppercase:    3,
		MinDigits:       3,
	}
}

// Validate reports whether password satisfies the policy.
func (p PasswordPolicy) Validate(password string) bool {
	if len(password) < p.MinLength {
		return false
	}
	return countAny(password, specialChars) >= p.MinSpecialChars &&
		countAny(password, uppercaseChars) >= p.MinUppercase &&
		countAny(password, digitChars) >= p.MinDigits
}

func countAny(s, chars string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(chars, r) {
			n++
		}
	}
	return n
}
