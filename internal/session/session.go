// Package session manages the signed-in user's bearer credential and the
// identity decoded from it.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when no credential is stored. Callers
// must refuse to talk to the server without one.
var ErrUnauthenticated = errors.New("session: no credential stored")

const credentialFile = "credentials"

// Store persists the bearer credential on disk. Nothing else survives a
// restart; message history is always refetched.
type Store struct {
	Dir string
}

// NewStore creates a credential store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Load reads the stored credential.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, credentialFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrUnauthenticated
		}
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}

// Save writes the credential with owner-only permissions.
func (s *Store) Save(token string) error {
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, credentialFile), []byte(token), 0600)
}

// Clear removes the stored credential (logout).
func (s *Store) Clear() error {
	err := os.Remove(filepath.Join(s.Dir, credentialFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Identity is the user identity carried inside the bearer token.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Avatar string
}

// DecodeIdentity extracts the identity claims from a bearer token without
// verifying the signature. Verification is the server's job; the client
// only needs the claims to classify messages as its own.
func DecodeIdentity(token string) (Identity, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("session: malformed credential: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("session: unexpected claims shape")
	}

	id := Identity{
		UserID: stringClaim(claims, "_id"),
		Name:   stringClaim(claims, "userName"),
		Email:  stringClaim(claims, "email"),
		Avatar: stringClaim(claims, "pic"),
	}
	if id.Name == "" {
		return Identity{}, errors.New("session: credential carries no user name")
	}
	return id, nil
}

// Session is the immutable signed-in context handed to components at
// construction. Token refreshes produce a new Session; holders keep
// classifying messages against the identity they were built with.
type Session struct {
	Token    string
	Identity Identity
}

// New builds a Session from a stored credential.
func New(token string) (Session, error) {
	id, err := DecodeIdentity(token)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Identity: id}, nil
}

// Owns reports whether a message sender display identity matches the
// session identity.
func (s Session) Owns(senderName string) bool {
	return senderName != "" && senderName == s.Identity.Name
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
