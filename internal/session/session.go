// Package session resolves the authenticated end-user behind an
// authorization request. Subjects are established by an upstream login
// flow and carried in a cookie session; this package only reads them.
package session

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys written by the login flow.
const (
	KeySubjectID = "subject_id"
	KeySessionID = "session_id"
)

// Validator checks whether a login session is still live. Token issuance
// for browser-driven grants consults it before minting anything.
type Validator interface {
	Validate(ctx context.Context, sessionID string) (bool, error)
}

// AlwaysValid accepts every session. Used when no external session
// service is configured; the cookie's own expiry is the only control.
type AlwaysValid struct{}

func (AlwaysValid) Validate(ctx context.Context, sessionID string) (bool, error) {
	return true, nil
}

// Subject is the authenticated principal resolved from the request.
type Subject struct {
	SubjectID string
	SessionID string
}

// CurrentSubject reads the authenticated subject from the cookie session.
// Returns ok=false when the request carries no authenticated session.
func CurrentSubject(c *gin.Context) (Subject, bool) {
	sess := sessions.Default(c)

	subjectID, _ := sess.Get(KeySubjectID).(string)
	if subjectID == "" {
		return Subject{}, false
	}
	sessionID, _ := sess.Get(KeySessionID).(string)

	return Subject{SubjectID: subjectID, SessionID: sessionID}, true
}
