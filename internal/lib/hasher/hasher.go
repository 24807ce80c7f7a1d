package hasher

import "golang.org/x/crypto/bcrypt"

// Hash produces a salted bcrypt hash of the password at the default cost.
func Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify reports whether password matches hash. A malformed hash counts
// as a verification failure.
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
