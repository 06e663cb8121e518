package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func usersYAML(t *testing.T) []byte {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`
users:
  - username: alice
    password_hash: %q
    name: Alice Example
    role: admin
`, h))
}

func TestCheckPassword(t *testing.T) {
	s, err := Parse(usersYAML(t))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	p, err := s.CheckPassword(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, Profile{Name: "Alice Example", Username: "alice", Role: "admin"}, p)

	_, err = s.CheckPassword(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrDenied)

	_, err = s.CheckPassword(context.Background(), "mallory", "hunter2")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCheckPasswordCancelled(t *testing.T) {
	s, err := Parse(usersYAML(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.CheckPassword(ctx, "alice", "hunter2")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRejectsBadFiles(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	require.NoError(t, err)
	dup := fmt.Sprintf("users:\n  - username: bob\n    password_hash: %[1]q\n  - username: bob\n    password_hash: %[1]q\n", h)

	tests := map[string]string{
		"not yaml":         "users: {",
		"missing username": "users:\n  - password_hash: x",
		"plaintext hash":   "users:\n  - username: bob\n    password_hash: secret",
		"duplicate users":  dup,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadAndHash(t *testing.T) {
	h, err := Hash("s3cret")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "users.yaml")
	body := fmt.Sprintf("users:\n  - username: op\n    password_hash: %q\n    role: operator\n", h)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	p, err := s.CheckPassword(context.Background(), "op", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "operator", p.Role)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
