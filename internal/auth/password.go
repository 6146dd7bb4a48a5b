package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// BurnCompare spends roughly the time of a real password check at the
// given cost. Login calls it for unknown usernames so response timing does
// not reveal which accounts exist.
func BurnCompare(plain string, cost int) {
	decoyOnce.Do(func() {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			cost = bcrypt.DefaultCost
		}
		decoyHash, _ = bcrypt.GenerateFromPassword([]byte("decoy-password"), cost)
	})
	_ = bcrypt.CompareHashAndPassword(decoyHash, []byte(plain))
}
