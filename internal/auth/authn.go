// Package auth implements username/password verification (plain or
// bcrypt) and auth-token minting, replacing the original's placeholder
// check_authentication stub with the real contract from §4.5/§4.9.
package auth

import (
	"crypto/subtle"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator verifies credentials against a loaded Credentials set.
type Authenticator struct {
	creds Credentials
}

// NewAuthenticator wraps creds for authentication.
func NewAuthenticator(creds Credentials) *Authenticator {
	return &Authenticator{creds: creds}
}

// Authenticate reports whether user/pass is a valid combination. An
// unknown user is logged; a wrong password is not. Both return false, so
// callers cannot distinguish "no such user" from "bad password" by return
// value alone.
func (a *Authenticator) Authenticate(user, pass string) bool {
	stored, ok := a.creds[user]
	if !ok {
		log.Printf("auth: unknown user %q", user)
		return false
	}

	if strings.HasPrefix(stored, "$") {
		if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(pass)); err != nil {
			return false
		}
		return true
	}

	return subtle.ConstantTimeCompare([]byte(stored), []byte(pass)) == 1
}
