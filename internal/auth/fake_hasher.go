package auth

import "strings"

// FakeInsecureHasher implements PasswordHasher with zero crypto overhead.
// Stores passwords as "$fake$<plaintext>"; for tests only.
type FakeInsecureHasher struct{}

func (FakeInsecureHasher) HashPassword(password string) (string, error) {
	return "$fake$" + password, nil
}

func (FakeInsecureHasher) VerifyPassword(password, encodedHash string) bool {
	stored, ok := strings.CutPrefix(encodedHash, "$fake$")
	return ok && stored == password
}
