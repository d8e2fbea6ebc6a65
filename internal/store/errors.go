package store

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned when an update or delete matches no row
	ErrNotFound = eris.New("store: not found")
	// ErrDegraded is matched by *DegradedError
	ErrDegraded = eris.New("store: infrastructure degraded")
)

// DegradedError marks a store failure caused by backend configuration
// (bad credentials, missing database role) rather than by the data.
type DegradedError struct {
	Reason string
	Err    error
}

func (e *DegradedError) Error() string {
	return "store: infrastructure degraded (" + e.Reason + "): " + e.Err.Error()
}

func (e *DegradedError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrDegraded
func (e *DegradedError) Is(target error) bool {
	return target == ErrDegraded
}

// Postgres SQLSTATE codes that signal configuration problems
const (
	codeUndefinedObject          = "42704"
	codeInvalidAuthorization     = "28000"
	codeInvalidPassword          = "28P01"
	codeInvalidRoleSpecification = "0P000"
)

var roleMissingRe = regexp.MustCompile(`role "[^"]*" does not exist`)

var degradedMessages = []string{
	"invalid api key",
	"no api key found",
	"invalid jwt",
	"jwt expired",
	"password authentication failed",
}

// Classify wraps err in a *DegradedError when it is a known configuration
// fault. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if reason, ok := degradationReason(err); ok {
		return &DegradedError{Reason: reason, Err: err}
	}
	return err
}

// IsDegradation reports whether err is, or classifies as, a configuration fault
func IsDegradation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDegraded) {
		return true
	}
	_, ok := degradationReason(err)
	return ok
}

func degradationReason(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInvalidAuthorization, codeInvalidPassword:
			return "invalid credentials", true
		case codeInvalidRoleSpecification:
			return "invalid role", true
		case codeUndefinedObject:
			if roleMissingRe.MatchString(pgErr.Message) {
				return "missing role", true
			}
		}
	}

	msg := strings.ToLower(err.Error())
	if roleMissingRe.MatchString(msg) {
		return "missing role", true
	}
	for _, m := range degradedMessages {
		if strings.Contains(msg, m) {
			return m, true
		}
	}
	return "", false
}
