package password

import (
	"errors"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password is empty")

// ErrUnknownHashFormat is returned when no configured hasher recognizes a stored hash.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Hasher hashes new passwords and verifies stored ones.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Scheme is a Hasher that can recognize its own encoded hashes.
type Scheme interface {
	Hasher
	Handles(encodedHash string) bool
}

// Multi hashes with its primary scheme and verifies with whichever scheme
// recognizes the stored hash. Hashes from a non-primary scheme always need an
// upgrade.
type Multi struct {
	primary Scheme
	others  []Scheme
}

// NewMulti returns a Multi that hashes with primary and also verifies others.
func NewMulti(primary Scheme, others ...Scheme) *Multi {
	return &Multi{primary: primary, others: others}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	s, err := m.schemeFor(encodedHash)
	if err != nil {
		return false, err
	}
	return s.Verify(password, encodedHash)
}

func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	s, err := m.schemeFor(encodedHash)
	if err != nil {
		return false, err
	}
	if s != m.primary {
		return true, nil
	}
	return s.NeedsUpgrade(encodedHash)
}

func (m *Multi) schemeFor(encodedHash string) (Scheme, error) {
	if m.primary.Handles(encodedHash) {
		return m.primary, nil
	}
	for _, s := range m.others {
		if s.Handles(encodedHash) {
			return s, nil
		}
	}
	return nil, ErrUnknownHashFormat
}
