// Package auth decides whether request credentials are accepted.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// Supported authenticator types.
const (
	TypeNone   = "none"
	TypeStatic = "static"
)

// Authenticator is a predicate over credentials.
type Authenticator interface {
	Authenticate(username, password string) bool
}

// Func adapts a plain function to Authenticator.
type Func func(username, password string) bool

// Authenticate implements Authenticator.
func (f Func) Authenticate(username, password string) bool {
	return f(username, password)
}

// AllowAll accepts every credential pair.
var AllowAll Authenticator = Func(func(string, string) bool { return true })

// User is a configured account. PasswordHash is an argon2id PHC string as
// produced by HashPassword.
type User struct {
	Username     string
	PasswordHash string
}

// Static authenticates against a fixed set of users.
type Static struct {
	users map[string]string
	// dummy is checked for unknown usernames so that they cost as much as
	// a wrong password.
	dummy   string
	compare func(password, hash string) (bool, error)
}

// NewStatic validates users and builds a Static authenticator.
func NewStatic(users []User) (*Static, error) {
	if len(users) < 1 {
		return nil, errors.New("auth: need at least one user")
	}
	s := &Static{
		users:   make(map[string]string, len(users)),
		compare: argon2id.ComparePasswordAndHash,
	}
	var params *argon2id.Params
	for _, u := range users {
		if strings.TrimSpace(u.Username) == "" {
			return nil, errors.New("auth: username cannot be empty")
		}
		p, _, _, err := argon2id.DecodeHash(u.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("auth: user %q: invalid password hash: %w", u.Username, err)
		}
		if params == nil {
			params = p
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("auth: duplicate user %q", u.Username)
		}
		s.users[u.Username] = u.PasswordHash
	}

	dummy, err := argon2id.CreateHash("docbroker-unknown-user", params)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	s.dummy = dummy
	return s, nil
}

// Authenticate implements Authenticator.
func (s *Static) Authenticate(username, password string) bool {
	hash, ok := s.users[username]
	if !ok {
		_, _ = s.compare(password, s.dummy)
		return false
	}
	match, err := s.compare(password, hash)
	return err == nil && match
}

// HashPassword returns an argon2id hash suitable for User.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: password cannot be empty")
	}
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// New builds the authenticator for typ.
func New(typ string, users []User) (Authenticator, error) {
	switch typ {
	case "", TypeNone:
		return AllowAll, nil
	case TypeStatic:
		return NewStatic(users)
	default:
		return nil, fmt.Errorf("auth: unknown type %q (want %s or %s)", typ, TypeNone, TypeStatic)
	}
}
