// Package password wraps bcrypt behind a small Hasher so the cost
// factor is configured in exactly one place.
package password

import "golang.org/x/crypto/bcrypt"

// Hasher produces and verifies salted bcrypt digests.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost.
// Costs outside bcrypt's supported range fall back to the default.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt digest of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches the stored digest. A malformed
// digest reads as a mismatch, never an error.
func (h *Hasher) Verify(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
