// Package hashing gives a reference implementation of the opaque password
// hashing collaborator named in §6: the core only ever depends on the
// Hasher interface, never on this package directly, since password hashing
// happens inside command handlers, never inside projections or the event
// store. Adapted from the teacher's srv/auth Bcrypt signer.
package hashing

import "golang.org/x/crypto/bcrypt"

// Hasher is the opaque service surface §6 describes: hash(pw) -> blob and
// verify(pw, blob). Verify returns nil when password matches blob and a
// non-nil error otherwise.
type Hasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, blob []byte) error
}

// Bcrypt implements Hasher with bcrypt at the given cost.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a Bcrypt hasher at bcrypt's default cost.
func NewBcrypt() *Bcrypt { return &Bcrypt{Cost: bcrypt.DefaultCost} }

func (b *Bcrypt) Hash(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), b.Cost)
}

func (b *Bcrypt) Verify(password string, blob []byte) error {
	return bcrypt.CompareHashAndPassword(blob, []byte(password))
}
