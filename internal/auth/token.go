package auth

import (
	"github.com/ducktracker/server/internal/shareid"
	"github.com/ducktracker/server/internal/tokenset"
)

// TokenLength is the length of a minted auth token.
const TokenLength = 16

// CreateToken authenticates user/pass and, on success, mints a fresh token,
// inserts it into tokens, and returns it. On authentication failure it
// returns ("", false) rather than an error — spec.md §4.5 treats a failed
// login as a normal outcome, not an error condition.
//
// tokens is not locked here: the caller (SessionStore, under its single
// coarse-grained lock) is responsible for serializing access, matching §5's
// "TokenSet is covered by the same exclusive lock" rule.
func (a *Authenticator) CreateToken(tokens *tokenset.BoundedSet, user, pass string) (string, bool) {
	if !a.Authenticate(user, pass) {
		return "", false
	}
	token := shareid.NewID(TokenLength)
	tokens.Insert(token)
	return token, true
}
