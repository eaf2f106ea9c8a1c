package browsertest

import (
	"fmt"
	"math/rand/v2"
)

// DefaultPassword is the password every suite registers with.
const DefaultPassword = "123456"

// randomSuffixMax bounds the numeric suffix of generated identifiers.
const randomSuffixMax = 10000

// Credentials is a generated account.
type Credentials struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// NewCredentials returns an account <prefix><n>@<domain> with the default
// password, n in [0, 10000).
func NewCredentials(prefix, domain string) Credentials {
	return Credentials{
		Email:           fmt.Sprintf("%s%d@%s", prefix, rand.IntN(randomSuffixMax), domain),
		Password:        DefaultPassword,
		ConfirmPassword: DefaultPassword,
	}
}

// RandomName returns prefix_<n>, n in [0, 10000).
func RandomName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, rand.IntN(randomSuffixMax))
}
