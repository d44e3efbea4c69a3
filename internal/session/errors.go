package session

import "errors"

// ErrNoSuchSession is returned when a SessionID does not name a live
// session, or names a session whose RejectData flag is set.
var ErrNoSuchSession = errors.New("session: no such session")

// ErrSessionExpired is returned when a lookup finds a session whose
// ExpiresAt has already passed; the session is removed in the same
// critical section that returns this error.
var ErrSessionExpired = errors.New("session: expired")
