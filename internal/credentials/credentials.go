// Package credentials verifies operator logins against a YAML users file
// holding bcrypt password hashes.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrDenied is returned for an unknown user or a wrong password. Callers
// must not tell the two apart.
var ErrDenied = errors.New("credentials: invalid username or password")

// Profile is what a successful login reveals about a user.
type Profile struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type user struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
}

type usersFile struct {
	Users []user `yaml:"users"`
}

// Store holds the users loaded at startup. It is read-only and safe for
// concurrent use.
type Store struct {
	users map[string]user
	dummy []byte
}

// Load reads the users file at path.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Store from YAML of the form
//
//	users:
//	  - username: alice
//	    password_hash: $2a$10$...
//	    name: Alice
//	    role: admin
func Parse(raw []byte) (*Store, error) {
	var f usersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse users: %w", err)
	}

	s := &Store{users: make(map[string]user, len(f.Users))}
	for i, u := range f.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("users[%d]: username is required", i)
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("users[%d] %s: password_hash: %w", i, u.Username, err)
		}
		s.users[u.Username] = u
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("unused"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	s.dummy = dummy
	return s, nil
}

// Len returns the number of configured users.
func (s *Store) Len() int { return len(s.users) }

// CheckPassword returns the profile of username if secret matches its
// hash. Unknown users still pay for one bcrypt comparison.
func (s *Store) CheckPassword(ctx context.Context, username, secret string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	u, ok := s.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(secret))
		return Profile{}, ErrDenied
	}

	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret))
	switch {
	case err == nil:
		return Profile{Name: u.Name, Username: u.Username, Role: u.Role}, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return Profile{}, ErrDenied
	default:
		return Profile{}, fmt.Errorf("compare %s: %w", username, err)
	}
}

// Hash returns a bcrypt hash of password suitable for a users file.
func Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
