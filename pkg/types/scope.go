package types

import "strings"

// Scope identifies the authenticated caller. Every repository call takes a
// Scope and every query it builds is filtered by the scope's user id.
type Scope struct {
	UserID string
}

func NewScope(userID string) Scope {
	return Scope{UserID: strings.TrimSpace(userID)}
}

func (s Scope) Validate() error {
	if s.UserID == "" {
		return ErrMissingScope
	}
	return nil
}

// RequestMeta is the best-effort caller context recorded in audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
