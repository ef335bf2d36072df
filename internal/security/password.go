package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost is the work factor for operator password hashes.
const bcryptCost = 12

// HashPassword derives a bcrypt hash for an operator password.
func HashPassword(password string) (string, error) {
	hash, errHash := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if errHash != nil {
		return "", errHash
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
